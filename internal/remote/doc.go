// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

/*
Package remote is the HTTP client used to talk to the tracking service and
the metadata provider.

A Client executes one request at a time against a base URL and returns a
Response that records whether the call succeeded, its status, headers and
body. It does not decide what a non-2xx status means: that is the job of
an ErrorClassifier, so callers can treat "304 Not Modified" or "409 Conflict"
as a benign outcome.

Resilience:
  - Circuit breaker (sony/gobreaker): transport errors and 5xx responses
    count as failures; while open, requests fail fast with ErrCircuitOpen.
  - HTTP 429: retried with exponential backoff, honoring Retry-After.
  - Limiter: token bucket (x/time/rate) shared by every caller of a
    quota-limited API. Acquire blocks until a permit is available.
*/
package remote
