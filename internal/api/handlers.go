// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/episodic/internal/actions"
	"github.com/tomtom215/episodic/internal/jobs"
	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/trigger"
)

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status          string `json:"status"`
	PendingJobs     int    `json:"pending_jobs"`
	InFlightActions int    `json:"in_flight_actions"`
	Syncing         bool   `json:"syncing"`
}

// QueueResponse is returned by GET /api/v1/queue.
type QueueResponse struct {
	Jobs     []jobs.EntryInfo   `json:"jobs"`
	Executor jobs.ExecutorState `json:"executor"`
}

// DrainRequest is the optional body of POST /api/v1/queue/drain. With
// Wait set the request blocks until the drain finishes or TimeoutSeconds
// (default: the request timeout) elapses.
type DrainRequest struct {
	Wait           bool `json:"wait"`
	TimeoutSeconds int  `json:"timeout_seconds" validate:"omitempty,min=1,max=600"`
}

// DrainResponse is returned by POST /api/v1/queue/drain.
type DrainResponse struct {
	Accepted bool   `json:"accepted"`
	Result   string `json:"result,omitempty"`
}

// EnqueueResponse is returned by the job submission routes.
type EnqueueResponse struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		PendingJobs:     s.deps.Queue.Len(),
		InFlightActions: s.deps.Actions.InFlight(),
		Syncing:         s.deps.Status.Status().Syncing,
	})
}

func (s *Server) listQueue(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, QueueResponse{
		Jobs:     s.deps.Queue.Jobs(),
		Executor: s.deps.Executor.State(),
	})
}

// clearQueue drops every pending job, as on sign-out.
func (s *Server) clearQueue(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Queue.Len()
	s.deps.Queue.Clear()
	logging.Ctx(r.Context()).Info().Int("jobs", n).Msg("Job queue clear requested")
	respondData(w, http.StatusAccepted, map[string]int{"cleared": n})
}

func (s *Server) drainQueue(w http.ResponseWriter, r *http.Request) {
	var req DrainRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if !req.Wait {
		accepted := s.deps.Drainer.Request(trigger.ReasonManual)
		respondData(w, http.StatusAccepted, DrainResponse{Accepted: accepted})
		return
	}

	timeout := s.cfg.RequestTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	result := s.deps.Drainer.Drain(ctx, trigger.ReasonManual)
	respondData(w, http.StatusOK, DrainResponse{Accepted: true, Result: result})
}

// enqueue decodes and validates a J from the body and adds it to the queue.
func enqueue[J jobs.Job](s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var job J
		if !decodeBody(w, r, &job) {
			return
		}
		if err := s.deps.Queue.AddJob(job); err != nil {
			respondError(w, http.StatusInternalServerError, CodeQueue, "failed to enqueue job", err)
			return
		}
		logging.Ctx(r.Context()).Info().
			Str("job_type", job.JobType()).
			Str("job_key", job.JobKey()).
			Msg("Job submitted")
		respondData(w, http.StatusAccepted, EnqueueResponse{Type: job.JobType(), Key: job.JobKey()})
	}
}

func (s *Server) listActions(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.deps.Actions.Snapshot()
	if snapshot == nil {
		snapshot = []actions.InFlightAction{}
	}
	respondData(w, http.StatusOK, snapshot)
}

func (s *Server) syncStatus(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, s.deps.Status.Status())
}
