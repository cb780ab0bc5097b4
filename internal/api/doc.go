// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package api serves the local admin API: queue inspection and control,
// job submission, in-flight actions, sync status and Prometheus metrics.
//
// Routes:
//
//	GET    /api/v1/health
//	GET    /api/v1/queue
//	DELETE /api/v1/queue
//	POST   /api/v1/queue/drain
//	POST   /api/v1/jobs/episodes
//	POST   /api/v1/jobs/movies/watchlist
//	POST   /api/v1/jobs/movies/watched
//	GET    /api/v1/actions
//	GET    /api/v1/sync/status
//	GET    /metrics
//
// Every JSON response uses the Response envelope.
package api
