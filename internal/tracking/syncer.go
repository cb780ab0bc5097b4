// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package tracking

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/episodic/internal/actions"
	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/metrics"
)

// ErrHistorySyncFailed is returned by SyncAll when the history walk did
// not complete.
var ErrHistorySyncFailed = errors.New("tracking: history sync failed")

const (
	// maxDetailFetches bounds show detail lookups per sync run.
	maxDetailFetches = 20

	detailFetchConcurrency = 4
)

// SyncAll is the periodic entry point. It walks the watched history and
// then fills in missing show details. Concurrent calls share one history
// walk.
func (s *Service) SyncAll(ctx context.Context) error {
	start := time.Now()
	log := logging.Ctx(ctx)

	pages, ok := actions.InvokeSync(ctx, s.actions, actions.Action[HistoryParams, int](s.history), HistoryParams{Limit: s.historyLimit})
	if !ok {
		metrics.RecordSyncRun(ErrHistorySyncFailed)
		log.Warn().Dur("duration", time.Since(start)).Msg("History sync did not complete")
		return ErrHistorySyncFailed
	}

	fetched := s.fillShowDetails(ctx)

	metrics.RecordSyncRun(nil)
	log.Info().
		Int("history_pages", pages).
		Int("details_fetched", fetched).
		Dur("duration", time.Since(start)).
		Msg("Sync completed")
	return nil
}

// fillShowDetails fetches details for shows the library has none for, at
// most detailFetchConcurrency at a time. Failures are logged by the action
// manager; a show is not asked for again until its attempt expires from
// detailAttempts.
func (s *Service) fillShowDetails(ctx context.Context) int {
	if s.details == nil {
		return 0
	}
	log := logging.Ctx(ctx)

	if expired := s.detailAttempts.CleanupExpired(); expired > 0 {
		log.Debug().Int("expired", expired).Msg("Show detail attempts expired")
	}

	missing, err := s.library.ShowsMissingDetails(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list shows missing details")
		return 0
	}
	now := time.Now()
	due := missing[:0]
	for _, show := range missing {
		if len(due) == maxDetailFetches {
			break
		}
		if !s.detailAttempts.Seen(strconv.Itoa(show), now) {
			due = append(due, show)
		}
	}

	var fetched atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailFetchConcurrency)
	for _, show := range due {
		g.Go(func() error {
			if _, ok := actions.InvokeSync(gctx, s.actions, actions.Action[int, ShowDetails](s.details), show); ok {
				fetched.Add(1)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		log.Debug().Err(err).Msg("Show detail fetches interrupted")
	}

	skipped, _, tracked := s.detailAttempts.Stats()
	log.Debug().
		Int("due", len(due)).
		Int("missing", len(missing)).
		Int64("attempts_skipped_total", skipped).
		Int("tracked", tracked).
		Msg("Show details filled")
	return int(fetched.Load())
}
