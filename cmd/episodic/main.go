// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package main is the entry point for the Episodic sync client.
//
// Episodic keeps a local media library in step with a remote tracking
// service. Local changes (episode and movie flags) are queued as durable
// jobs and uploaded one at a time; reads from the remote service go
// through a coalescing action manager so concurrent callers share one
// request.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Durable job store (badger, duckdb or memory)
//  3. Remote clients, metadata rate limiter and action manager
//  4. Job registry, queue and handler
//  5. Event bus, drain scheduler and supervisor tree
//
// On SIGINT or SIGTERM the tree stops, in-flight actions are cancelled,
// the running job is allowed to finish and the store is closed. Jobs
// still queued are drained on the next start.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/episodic/internal/actions"
	"github.com/tomtom215/episodic/internal/api"
	"github.com/tomtom215/episodic/internal/config"
	"github.com/tomtom215/episodic/internal/dispatch"
	"github.com/tomtom215/episodic/internal/events"
	"github.com/tomtom215/episodic/internal/jobs"
	"github.com/tomtom215/episodic/internal/jobstore"
	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/remote"
	"github.com/tomtom215/episodic/internal/supervisor"
	"github.com/tomtom215/episodic/internal/supervisor/services"
	"github.com/tomtom215/episodic/internal/tracking"
	"github.com/tomtom215/episodic/internal/trigger"
)

const shutdownTimeout = 10 * time.Second

//nolint:gocyclo // sequential wiring
func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().
		Str("remote_url", cfg.Remote.URL).
		Str("store_backend", cfg.Store.Backend).
		Bool("sync_enabled", cfg.Sync.Enabled).
		Bool("server_enabled", cfg.Server.Enabled).
		Msg("Starting Episodic")

	store, err := jobstore.Open(jobstore.Config{
		Backend:    cfg.Store.Backend,
		Path:       cfg.Store.Path,
		SyncWrites: cfg.Store.SyncWrites,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open job store")
	}

	trackerClient, metadataClient, err := newRemoteClients(cfg)
	if err != nil {
		closeStore(store)
		logging.Fatal().Err(err).Msg("Failed to create remote clients")
	}
	metadataLimiter := remote.NewLimiter("metadata", cfg.Metadata.RequestsPerSecond, cfg.Metadata.Burst)

	actionManager := actions.NewManager(cfg.Actions.Workers)
	library := tracking.NewMemoryLibrary()
	service, err := tracking.NewService(tracking.Deps{
		Tracker:         trackerClient,
		Metadata:        metadataClient,
		MetadataLimiter: metadataLimiter,
		Classifier:      remote.DefaultClassifier,
		Library:         library,
		Actions:         actionManager,
		HistoryLimit:    cfg.Sync.HistoryLimit,
	})
	if err != nil {
		closeStore(store)
		logging.Fatal().Err(err).Msg("Failed to create tracking service")
	}

	registry := jobs.NewRegistry()
	service.Register(registry)

	// Queue mutations, job execution and listener callbacks each get
	// their own serialized loop.
	queueLoop := dispatch.NewLoop("job-queue")
	workerLoop := dispatch.NewLoop("job-worker")
	mainLoop := dispatch.NewLoop("job-main")

	manager := jobs.NewManager(store, registry, queueLoop, mainLoop)
	if err := manager.Loaded(); err != nil {
		closeStore(store)
		logging.Fatal().Err(err).Msg("Failed to load persisted jobs")
	}
	logging.Info().Int("pending", manager.Len()).Strs("types", registry.Types()).Msg("Job queue loaded")

	bus := events.NewBus()
	handler := jobs.NewHandler(manager, mainLoop, workerLoop, jobs.HandlerConfig{
		StopDelay: cfg.Jobs.StopDelay,
		Executor:  jobs.ExecutorConfig{BackoffDelay: cfg.Jobs.BackoffDelay},
	}, bus)

	scheduler := trigger.NewScheduler(handler, trigger.Config{
		Delay:    cfg.Jobs.DrainDelay,
		Interval: cfg.Jobs.DrainInterval,
		Timeout:  cfg.Jobs.DrainTimeout,
	}, bus)
	handler.SetDrainScheduler(scheduler)

	statusTracker := events.NewStatusTracker(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		closeStore(store)
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddCoreService(statusTracker)
	tree.AddSyncService(scheduler)
	if cfg.Sync.Enabled {
		tree.AddSyncService(trigger.NewPeriodic("periodic-sync", cfg.Sync.Interval, service.SyncAll))
	}

	if cfg.Server.Enabled {
		apiServer, err := api.NewServer(api.Deps{
			Queue:    manager,
			Executor: handler.Executor(),
			Drainer:  scheduler,
			Actions:  actionManager,
			Status:   statusTracker,
		}, api.Config{
			RequestTimeout:  cfg.Server.Timeout,
			RateLimitReqs:   cfg.Server.RateLimitReqs,
			RateLimitWindow: cfg.Server.RateLimitWindow,
		})
		if err != nil {
			closeStore(store)
			logging.Fatal().Err(err).Msg("Failed to create admin API")
		}
		server := &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		tree.AddAPIService(services.NewHTTPServerService("admin-api", server, shutdownTimeout))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	for err := range tree.ServeBackground(ctx) {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	// The executor stops dequeuing and the worker loop lets the current
	// job finish. Closing the queue loop flushes pending store writes.
	handler.Executor().Stop()
	workerLoop.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := actionManager.Close(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Actions still running at shutdown")
	}

	queueLoop.Close()
	mainLoop.Close()

	if err := bus.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close event bus")
	}
	closeStore(store)
	logging.Info().Msg("Episodic stopped")
}

func newRemoteClients(cfg *config.Config) (*remote.Client, *remote.Client, error) {
	breaker := remote.BreakerConfig{
		FailureThreshold: cfg.Remote.BreakerFailureThreshold,
		Interval:         cfg.Remote.BreakerInterval,
		Timeout:          cfg.Remote.BreakerTimeout,
		MaxRequests:      cfg.Remote.BreakerMaxRequests,
	}

	header := http.Header{}
	header.Set("trakt-api-version", cfg.Remote.APIVersion)
	if cfg.Remote.ClientID != "" {
		header.Set("trakt-api-key", cfg.Remote.ClientID)
	}
	if cfg.Remote.AccessToken != "" {
		header.Set("Authorization", "Bearer "+cfg.Remote.AccessToken)
	}
	tracker, err := remote.NewClient(remote.ClientConfig{
		Name:       "tracker",
		BaseURL:    cfg.Remote.URL,
		Header:     header,
		Timeout:    cfg.Remote.Timeout,
		MaxRetries: cfg.Remote.MaxRetries,
		Breaker:    breaker,
	})
	if err != nil {
		return nil, nil, err
	}

	query := map[string][]string{}
	if cfg.Metadata.APIKey != "" {
		query["api_key"] = []string{cfg.Metadata.APIKey}
	}
	metadata, err := remote.NewClient(remote.ClientConfig{
		Name:       "metadata",
		BaseURL:    cfg.Metadata.URL,
		Query:      query,
		Timeout:    cfg.Metadata.Timeout,
		MaxRetries: cfg.Remote.MaxRetries,
		Breaker:    breaker,
	})
	if err != nil {
		return nil, nil, err
	}
	return tracker, metadata, nil
}

func closeStore(store jobstore.Store) {
	if err := store.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing job store")
	}
}
