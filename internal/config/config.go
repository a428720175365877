package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServiceEnvironment string `envconfig:"SERVICE_ENVIRONMENT" default:"development"`
	ServicePort        string `envconfig:"SERVICE_PORT" default:"8080"`

	GitHubToken      string `envconfig:"GITHUB_TOKEN" required:"true"`
	GitHubAPIBaseURL string `envconfig:"GITHUB_API_BASE_URL" default:"https://api.github.com"`
	GitHubUserAgent  string `envconfig:"GITHUB_USER_AGENT" default:"star-feed-service"`
	GitHubTimeoutSec int    `envconfig:"GITHUB_TIMEOUT_SEC" default:"30"`

	PostgresDSN string `envconfig:"POSTGRES_DSN" required:"true"`

	PollRefreshMinutes  int `envconfig:"POLL_REFRESH_MINUTES" default:"5"`
	PollMaxConcurrency  int `envconfig:"POLL_MAX_CONCURRENCY" default:"5"`
	IntervalMinMinutes  int `envconfig:"INTERVAL_MIN_MINUTES" default:"10"`
	IntervalMaxMinutes  int `envconfig:"INTERVAL_MAX_MINUTES" default:"10080"`
	IntervalDefaultMins int `envconfig:"INTERVAL_DEFAULT_MINUTES" default:"60"`

	FeedLength        int  `envconfig:"FEED_LENGTH" default:"100"`
	SearchMatchTopics bool `envconfig:"SEARCH_MATCH_TOPICS" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.IntervalMinMinutes < 1 {
		return nil, fmt.Errorf("INTERVAL_MIN_MINUTES must be at least 1, got %d", cfg.IntervalMinMinutes)
	}
	if cfg.IntervalMaxMinutes < cfg.IntervalMinMinutes {
		return nil, fmt.Errorf("INTERVAL_MAX_MINUTES (%d) must not be below INTERVAL_MIN_MINUTES (%d)",
			cfg.IntervalMaxMinutes, cfg.IntervalMinMinutes)
	}
	if cfg.PollMaxConcurrency < 1 {
		return nil, fmt.Errorf("POLL_MAX_CONCURRENCY must be at least 1, got %d", cfg.PollMaxConcurrency)
	}

	return &cfg, nil
}

// GitHubTimeout returns the per-request timeout for upstream calls.
func (c *Config) GitHubTimeout() time.Duration {
	return time.Duration(c.GitHubTimeoutSec) * time.Second
}

// PollRefresh returns the pause between scheduler cycles.
func (c *Config) PollRefresh() time.Duration {
	return time.Duration(c.PollRefreshMinutes) * time.Minute
}
