// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/metrics"
)

// requestIDWithLogging sets a request ID and uses it as the correlation
// ID of everything the request causes, including actions and jobs. The
// request context carries base for logging.Ctx.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func requestIDWithLogging(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chimiddleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chimiddleware.GetReqID(r.Context())
			w.Header().Set(chimiddleware.RequestIDHeader, id)
			ctx := logging.ContextWithLogger(r.Context(), base)
			ctx = logging.ContextWithCorrelationID(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		}))
	}
}

// instrument logs each request and records Prometheus metrics labelled
// by route pattern, so IDs in paths do not create new series.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.APIActiveRequests.Inc()
		defer metrics.APIActiveRequests.Dec()

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(status), duration)

		logging.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("route", route).
			Str("path", sanitizeLogValue(r.URL.Path)).
			Int("status", status).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}
