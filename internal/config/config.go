// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package config loads Episodic configuration from defaults, an optional
// YAML file and environment variables (in increasing priority), then
// validates the result.
package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/episodic/internal/validation"
)

// Config is the root configuration.
type Config struct {
	Remote   RemoteConfig   `koanf:"remote"`
	Metadata MetadataConfig `koanf:"metadata"`
	Store    StoreConfig    `koanf:"store"`
	Jobs     JobsConfig     `koanf:"jobs"`
	Actions  ActionsConfig  `koanf:"actions"`
	Sync     SyncConfig     `koanf:"sync"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// RemoteConfig describes the tracking service account and client policy.
type RemoteConfig struct {
	URL         string        `koanf:"url" validate:"required,url"`
	ClientID    string        `koanf:"client_id"`
	AccessToken string        `koanf:"access_token"`
	APIVersion  string        `koanf:"api_version" validate:"required"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxRetries  int           `koanf:"max_retries" validate:"gte=0,lte=10"`

	// Circuit breaker around every remote call.
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold" validate:"gte=1"`
	BreakerInterval         time.Duration `koanf:"breaker_interval" validate:"gte=0"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	BreakerMaxRequests      uint32        `koanf:"breaker_max_requests" validate:"gte=1"`
}

// MetadataConfig describes the third-party metadata API. It has a strict
// request quota, so every call goes through a shared limiter.
type MetadataConfig struct {
	URL               string        `koanf:"url" validate:"required,url"`
	APIKey            string        `koanf:"api_key"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Burst             int           `koanf:"burst" validate:"gte=1"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
}

// StoreConfig selects the durable job store.
type StoreConfig struct {
	Backend    string `koanf:"backend" validate:"oneof=badger duckdb memory"`
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// JobsConfig holds job queue timing.
type JobsConfig struct {
	// BackoffDelay pauses the whole queue after any job failure.
	BackoffDelay time.Duration `koanf:"backoff_delay" validate:"gt=0"`

	// StopDelay is the grace period between the last session listener
	// leaving and the executor stopping.
	StopDelay time.Duration `koanf:"stop_delay" validate:"gte=0"`

	// DrainDelay is how long a requested background drain waits before running.
	DrainDelay time.Duration `koanf:"drain_delay" validate:"gte=0"`

	// DrainInterval re-drains pending jobs periodically. Zero disables it.
	DrainInterval time.Duration `koanf:"drain_interval" validate:"gte=0"`

	// DrainTimeout bounds a single background drain.
	DrainTimeout time.Duration `koanf:"drain_timeout" validate:"gt=0"`
}

// ActionsConfig sizes the action worker pool.
type ActionsConfig struct {
	Workers int `koanf:"workers" validate:"gte=1,lte=256"`
}

// SyncConfig controls the periodic full sync.
type SyncConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Interval     time.Duration `koanf:"interval" validate:"gte=0"`
	HistoryLimit int           `koanf:"history_limit" validate:"gte=1,lte=1000"`
}

// ServerConfig configures the local admin API.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Addr returns host:port for the admin server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate runs tag validation then the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if c.Store.Backend != "memory" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
	}
	if c.Sync.Enabled && c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive when sync is enabled")
	}
	if c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be positive when rate limiting is enabled")
	}
	return nil
}
