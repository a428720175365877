package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
	"github.com/BarkinBalci/star-feed-service/internal/dto"
	"github.com/BarkinBalci/star-feed-service/internal/metrics"
	"github.com/BarkinBalci/star-feed-service/internal/service"
)

// Cache policies per surface. Star pages revalidate on every request, the
// options aggregate is shared and slow-moving, status tolerates a stale copy.
const (
	cacheControlStars   = "private, max-age=0"
	cacheControlOptions = "public, max-age=300"
	cacheControlStatus  = "private, max-age=30, stale-while-revalidate=30"
)

type Handler struct {
	starService service.StarServicer
	metrics     *metrics.Metrics
	router      *gin.Engine
	log         *zap.Logger
}

func NewHandler(starService service.StarServicer, m *metrics.Metrics, log *zap.Logger) *Handler {
	h := &Handler{
		starService: starService,
		metrics:     m,
		router:      gin.Default(),
		log:         log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.GET("/api/stars", h.getStars)
	h.router.GET("/api/options", h.getOptions)
	h.router.GET("/api/status", h.getStatus)
	h.router.GET("/feed.xml", h.getFeed)
	if h.metrics != nil {
		h.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			h.metrics.Registry(), promhttp.HandlerOpts{})))
	}
}

// healthCheck reports process liveness only; readiness lives under /api/status.
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// getStars handles GET /api/stars: filtered, paginated star history with
// conditional-request support.
func (h *Handler) getStars(c *gin.Context) {
	var query dto.StarsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.log.Warn("Invalid stars request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	resp, err := h.starService.QueryStars(c.Request.Context(), query)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "validation_error",
				Message: "invalid query parameters",
				Fields:  verr.Fields,
			})
			return
		}
		h.log.Error("Failed to query stars", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.Header("Cache-Control", cacheControlStars)
	c.Header("ETag", resp.Meta.ETag)
	if resp.Meta.LastModified != "" {
		c.Header("Last-Modified", resp.Meta.LastModified)
	}
	if etagMatches(c.GetHeader("If-None-Match"), resp.Meta.ETag) {
		c.Status(http.StatusNotModified)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getOptions handles GET /api/options: the distinct filter values in storage.
func (h *Handler) getOptions(c *gin.Context) {
	resp, err := h.starService.Options(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to load filter options", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.Header("Cache-Control", cacheControlOptions)
	c.Header("ETag", resp.ETag)
	if etagMatches(c.GetHeader("If-None-Match"), resp.ETag) {
		c.Status(http.StatusNotModified)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getStatus handles GET /api/status. Until the first polling cycle completes
// the body is served with 503 so load balancers hold traffic back.
func (h *Handler) getStatus(c *gin.Context) {
	resp := h.starService.Status(c.Request.Context())

	c.Header("Cache-Control", cacheControlStatus)
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// getFeed handles GET /feed.xml.
func (h *Handler) getFeed(c *gin.Context) {
	xml, err := h.starService.Feed(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to render feed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(xml))
}

// etagMatches implements If-None-Match comparison, including the wildcard
// form.
func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}
