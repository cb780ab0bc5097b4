// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package tracking is the media-tracking domain: the jobs that push local
// changes to the tracking service and the actions that pull remote state
// back into the local library.
package tracking

import (
	"errors"
	"time"

	"github.com/tomtom215/episodic/internal/actions"
	"github.com/tomtom215/episodic/internal/cache"
	"github.com/tomtom215/episodic/internal/jobs"
	"github.com/tomtom215/episodic/internal/remote"
)

const (
	// DefaultHistoryLimit is the page size used when walking watched history.
	DefaultHistoryLimit = 100

	// DefaultDetailRetryAfter spaces out detail lookups for the same show.
	DefaultDetailRetryAfter = 6 * time.Hour

	maxTrackedDetailAttempts = 5000
)

// Deps are the collaborators of the tracking domain.
type Deps struct {
	// Tracker talks to the tracking service.
	Tracker actions.Caller

	// Metadata talks to the metadata provider. Optional; show details are
	// not fetched without it.
	Metadata actions.Caller

	// MetadataLimiter is shared by every metadata call.
	MetadataLimiter actions.Permits

	Classifier   remote.ErrorClassifier
	Library      Library
	Actions      *actions.Manager
	HistoryLimit int

	// DetailRetryAfter is how long a show whose details could not be
	// fetched is skipped by later syncs.
	DetailRetryAfter time.Duration
}

// Service performs tracking jobs and owns the tracking actions.
type Service struct {
	tracker    actions.Caller
	classifier remote.ErrorClassifier
	library    Library
	actions    *actions.Manager

	// detailAttempts holds shows whose details were requested recently.
	detailAttempts *cache.LRU[time.Time]

	seasons *actions.CallAction[SeasonParams, int]
	history *actions.PagedAction[HistoryParams]
	details *actions.CallAction[int, ShowDetails]

	historyLimit int
}

// NewService validates deps and builds the actions.
func NewService(deps Deps) (*Service, error) {
	if deps.Tracker == nil {
		return nil, errors.New("tracking: tracker client is required")
	}
	if deps.Library == nil {
		return nil, errors.New("tracking: library is required")
	}
	if deps.Actions == nil {
		return nil, errors.New("tracking: action manager is required")
	}
	if deps.Classifier == nil {
		deps.Classifier = remote.DefaultClassifier
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = DefaultHistoryLimit
	}
	if deps.DetailRetryAfter <= 0 {
		deps.DetailRetryAfter = DefaultDetailRetryAfter
	}

	s := &Service{
		tracker:      deps.Tracker,
		classifier:   deps.Classifier,
		library:      deps.Library,
		actions:      deps.Actions,
		historyLimit: deps.HistoryLimit,

		detailAttempts: cache.NewLRU[time.Time](maxTrackedDetailAttempts, deps.DetailRetryAfter),
	}
	s.seasons = newSyncSeasonAction(deps.Tracker, deps.Classifier, deps.Library)
	s.history = newHistoryAction(deps.Tracker, deps.Classifier, deps.Library)
	if deps.Metadata != nil {
		s.details = newShowDetailsAction(deps.Metadata, deps.MetadataLimiter, deps.Classifier, deps.Library)
	}
	return s, nil
}

// Register adds the tracking job types to reg.
func (s *Service) Register(reg *jobs.Registry) {
	jobs.Register(reg, s.performEpisodeFlag)
	jobs.Register(reg, s.performMovieWatchlist)
	jobs.Register(reg, s.performMovieWatched)
}
