// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/episodic/internal/actions"
	"github.com/tomtom215/episodic/internal/events"
	"github.com/tomtom215/episodic/internal/jobs"
	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/tracking"
)

// Queue is the part of jobs.Manager the API uses.
type Queue interface {
	AddJob(job jobs.Job) error
	Jobs() []jobs.EntryInfo
	Len() int
	Clear()
}

// ExecutorState reports the executor. *jobs.Executor satisfies it.
type ExecutorState interface {
	State() jobs.ExecutorState
}

// Drainer runs background drains. *trigger.Scheduler satisfies it.
type Drainer interface {
	Request(reason string) bool
	Drain(ctx context.Context, reason string) string
}

// Actions reports in-flight actions. *actions.Manager satisfies it.
type Actions interface {
	InFlight() int
	Snapshot() []actions.InFlightAction
}

// StatusSource reports sync status. *events.StatusTracker satisfies it.
type StatusSource interface {
	Status() events.Status
}

// Deps are the components the API exposes.
type Deps struct {
	Queue    Queue
	Executor ExecutorState
	Drainer  Drainer
	Actions  Actions
	Status   StatusSource
}

// Config configures the router.
type Config struct {
	// RequestTimeout bounds a single request. Waiting drains use it too.
	RequestTimeout  time.Duration
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// Server holds the handlers.
type Server struct {
	deps Deps
	cfg  Config
}

// NewServer validates deps and creates a server.
func NewServer(deps Deps, cfg Config) (*Server, error) {
	if deps.Queue == nil || deps.Executor == nil || deps.Drainer == nil || deps.Actions == nil || deps.Status == nil {
		return nil, errors.New("api server requires queue, executor, drainer, actions and status")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Server{deps: deps, cfg: cfg}, nil
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDWithLogging(logging.WithComponent("api")))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(instrument)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimitReqs > 0 {
			r.Use(httprate.Limit(
				s.cfg.RateLimitReqs,
				s.cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				}),
			))
		}

		// Waiting drains carry their own deadline.
		r.Post("/queue/drain", s.drainQueue)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))

			r.Get("/health", s.health)
			r.Get("/queue", s.listQueue)
			r.Delete("/queue", s.clearQueue)

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/episodes", enqueue[tracking.EpisodeFlagJob](s))
				r.Post("/movies/watchlist", enqueue[tracking.MovieWatchlistJob](s))
				r.Post("/movies/watched", enqueue[tracking.MovieWatchedJob](s))
			})

			r.Get("/actions", s.listActions)
			r.Get("/sync/status", s.syncStatus)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, CodeNotFound, "no such route", nil)
	})
	return r
}
