package dto

import (
	"time"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
	"github.com/BarkinBalci/star-feed-service/internal/repository"
)

// PageMeta describes one result page and carries the cache validators for it.
type PageMeta struct {
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
	Total        int    `json:"total"`
	HasNext      bool   `json:"has_next"`
	HasPrev      bool   `json:"has_prev"`
	ETag         string `json:"etag"`
	LastModified string `json:"last_modified,omitempty"`
}

// StarsResponse is the GET /api/stars envelope.
type StarsResponse struct {
	Items []domain.StarEvent `json:"items"`
	Meta  PageMeta           `json:"meta"`
}

// OptionsResponse lists the filter values currently present in storage. The
// ETag is transported in headers, not in the body.
type OptionsResponse struct {
	Languages []repository.LanguageCount `json:"languages"`
	Tiers     []repository.TierCount     `json:"activity_tiers"`
	Accounts  []repository.AccountCount  `json:"users"`
	UpdatedAt *time.Time                 `json:"updated_at"`
	ETag      string                     `json:"-"`
}

// CycleStatus summarizes the most recent polling cycle.
type CycleStatus struct {
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	AccountsTracked int       `json:"accounts_tracked"`
	AccountsPolled  int       `json:"accounts_polled"`
	EventsInserted  int       `json:"events_inserted"`
	Errors          int       `json:"errors"`
	Throttled       int       `json:"throttled"`
}

// RateLimitStatus mirrors the last observed upstream quota signals.
type RateLimitStatus struct {
	Remaining   *int       `json:"remaining"`
	ResetAt     *time.Time `json:"reset_at"`
	PausedUntil *time.Time `json:"paused_until,omitempty"`
}

// NextDueStatus holds the earliest scheduled poll per activity tier.
type NextDueStatus struct {
	High    *time.Time `json:"high"`
	Medium  *time.Time `json:"medium"`
	Low     *time.Time `json:"low"`
	Unknown *time.Time `json:"unknown"`
}

// StatusResponse is the GET /api/status body. Ready stays false until the
// first polling cycle completes.
type StatusResponse struct {
	Ready      bool            `json:"ready"`
	DatabaseOK bool            `json:"database_ok"`
	LastCycle  *CycleStatus    `json:"last_cycle"`
	LastError  string          `json:"last_error,omitempty"`
	NextRunAt  *time.Time      `json:"next_run_at"`
	RateLimit  RateLimitStatus `json:"rate_limit"`
	NextDue    NextDueStatus   `json:"next_due_by_tier"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}
