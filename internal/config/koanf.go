// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/episodic/config.yaml",
	"/etc/episodic/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			URL:                     "https://api.trakt.tv",
			APIVersion:              "2",
			Timeout:                 30 * time.Second,
			MaxRetries:              5,
			BreakerFailureThreshold: 5,
			BreakerInterval:         time.Minute,
			BreakerTimeout:          30 * time.Second,
			BreakerMaxRequests:      1,
		},
		Metadata: MetadataConfig{
			URL:               "https://api.themoviedb.org/3",
			RequestsPerSecond: 4,
			Burst:             1,
			Timeout:           15 * time.Second,
		},
		Store: StoreConfig{
			Backend:    "badger",
			Path:       "/data/episodic/jobs",
			SyncWrites: true,
		},
		Jobs: JobsConfig{
			BackoffDelay:  30 * time.Second,
			StopDelay:     2 * time.Second,
			DrainDelay:    5 * time.Second,
			DrainInterval: 15 * time.Minute,
			DrainTimeout:  10 * time.Minute,
		},
		Actions: ActionsConfig{
			Workers: 8,
		},
		Sync: SyncConfig{
			Enabled:      true,
			Interval:     time.Hour,
			HistoryLimit: 100,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8787,
			Timeout:         30 * time.Second,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration from three layers:
//  1. built-in defaults
//  2. an optional YAML file
//  3. environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"remote_url":                       "remote.url",
	"remote_client_id":                 "remote.client_id",
	"remote_access_token":              "remote.access_token",
	"remote_api_version":               "remote.api_version",
	"remote_timeout":                   "remote.timeout",
	"remote_max_retries":               "remote.max_retries",
	"remote_breaker_failure_threshold": "remote.breaker_failure_threshold",
	"remote_breaker_interval":          "remote.breaker_interval",
	"remote_breaker_timeout":           "remote.breaker_timeout",
	"remote_breaker_max_requests":      "remote.breaker_max_requests",

	"metadata_url":                 "metadata.url",
	"metadata_api_key":             "metadata.api_key",
	"metadata_requests_per_second": "metadata.requests_per_second",
	"metadata_burst":               "metadata.burst",
	"metadata_timeout":             "metadata.timeout",

	"store_backend":     "store.backend",
	"store_path":        "store.path",
	"store_sync_writes": "store.sync_writes",

	"job_backoff_delay":  "jobs.backoff_delay",
	"job_stop_delay":     "jobs.stop_delay",
	"job_drain_delay":    "jobs.drain_delay",
	"job_drain_interval": "jobs.drain_interval",
	"job_drain_timeout":  "jobs.drain_timeout",

	"action_workers": "actions.workers",

	"sync_enabled":       "sync.enabled",
	"sync_interval":      "sync.interval",
	"sync_history_limit": "sync.history_limit",

	"http_enabled":      "server.enabled",
	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"rate_limit_reqs":   "server.rate_limit_reqs",
	"rate_limit_window": "server.rate_limit_window",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps REMOTE_URL to remote.url, HTTP_PORT to server.port
// and so on. It returns "" for variables we do not own.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
