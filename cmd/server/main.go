package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/star-feed-service/internal/config"
	"github.com/BarkinBalci/star-feed-service/internal/feed"
	"github.com/BarkinBalci/star-feed-service/internal/github"
	"github.com/BarkinBalci/star-feed-service/internal/handler"
	"github.com/BarkinBalci/star-feed-service/internal/interval"
	"github.com/BarkinBalci/star-feed-service/internal/logger"
	"github.com/BarkinBalci/star-feed-service/internal/metrics"
	"github.com/BarkinBalci/star-feed-service/internal/repository/postgres"
	"github.com/BarkinBalci/star-feed-service/internal/scheduler"
	"github.com/BarkinBalci/star-feed-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.ServiceEnvironment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	log.Info("Starting star feed service",
		zap.String("environment", cfg.ServiceEnvironment),
		zap.String("port", cfg.ServicePort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL client and storage
	pgClient, err := postgres.NewClient(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("Failed to create PostgreSQL client", zap.Error(err))
	}
	defer pgClient.Close()

	store := postgres.NewRepository(pgClient, log)
	if err := store.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Initialize upstream client
	ghClient, err := github.NewClient(github.Config{
		BaseURL:   cfg.GitHubAPIBaseURL,
		Token:     cfg.GitHubToken,
		UserAgent: cfg.GitHubUserAgent,
		Timeout:   cfg.GitHubTimeout(),
	}, log)
	if err != nil {
		log.Fatal("Failed to create GitHub client", zap.Error(err))
	}

	m := metrics.New()

	// Initialize scheduler and start the polling loop
	sched := scheduler.New(ghClient, store, scheduler.Config{
		Refresh:        cfg.PollRefresh(),
		MaxConcurrency: cfg.PollMaxConcurrency,
		Interval: interval.Config{
			MinMinutes:     cfg.IntervalMinMinutes,
			MaxMinutes:     cfg.IntervalMaxMinutes,
			DefaultMinutes: cfg.IntervalDefaultMins,
		},
	}, m, log)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	// Initialize read-side service and HTTP handler
	renderer := feed.NewRenderer(
		"Starred by people you follow",
		fmt.Sprintf("http://localhost:%s", cfg.ServicePort))
	starService := service.NewStarService(store, sched, renderer, cfg.FeedLength, cfg.SearchMatchTopics, log)
	h := handler.NewHandler(starService, m, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServicePort),
		Handler: h,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down HTTP server cleanly", zap.Error(err))
	}

	// Let the scheduler finish its in-flight work before the pool closes.
	<-schedDone
}
