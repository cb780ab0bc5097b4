// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package tracking

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/episodic/internal/actions"
	"github.com/tomtom215/episodic/internal/remote"
)

// SeasonParams selects one season of a show.
type SeasonParams struct {
	Show   int
	Season int
}

// HistoryParams configures a history walk.
type HistoryParams struct {
	Limit int
}

// newSyncSeasonAction pulls the watched state of one season and replaces
// the local copy. The result is the number of watched episodes.
func newSyncSeasonAction(client actions.Caller, classifier remote.ErrorClassifier, lib Library) *actions.CallAction[SeasonParams, int] {
	return &actions.CallAction[SeasonParams, int]{
		Name:       "SyncSeason",
		Client:     client,
		Classifier: classifier,
		KeyParams: func(p SeasonParams) []interface{} {
			return []interface{}{"show", p.Show, "season", p.Season}
		},
		Request: func(p SeasonParams) (remote.Request, error) {
			q := url.Values{"specials": {"true"}, "count_specials": {"false"}}
			return remote.Get(fmt.Sprintf("/shows/%d/progress/watched", p.Show), q), nil
		},
		Handle: func(ctx context.Context, p SeasonParams, resp *remote.Response) (int, error) {
			var progress showProgress
			if err := resp.Decode(&progress); err != nil {
				return 0, actions.Failed(err)
			}
			var watched []int
			for _, season := range progress.Seasons {
				if season.Number != p.Season {
					continue
				}
				for _, ep := range season.Episodes {
					if ep.Completed {
						watched = append(watched, ep.Number)
					}
				}
			}
			if err := lib.ReplaceSeasonWatched(ctx, p.Show, p.Season, watched); err != nil {
				return 0, err
			}
			return len(watched), nil
		},
	}
}

// newHistoryAction walks the user's watched history into the library.
func newHistoryAction(client actions.Caller, classifier remote.ErrorClassifier, lib Library) *actions.PagedAction[HistoryParams] {
	return &actions.PagedAction[HistoryParams]{
		Name:       "SyncHistory",
		Client:     client,
		Classifier: classifier,
		Request: func(p HistoryParams, page int) (remote.Request, error) {
			q := url.Values{
				"page":  {strconv.Itoa(page)},
				"limit": {strconv.Itoa(p.Limit)},
			}
			return remote.Get("/sync/history", q), nil
		},
		HandlePage: func(ctx context.Context, _ HistoryParams, _ int, resp *remote.Response) error {
			var items []HistoryItem
			if err := resp.Decode(&items); err != nil {
				return actions.Failed(err)
			}
			return lib.RecordHistory(ctx, items)
		},
		OnDone: func(ctx context.Context, _ HistoryParams) error {
			return lib.SetLastHistorySync(ctx, time.Now().UTC())
		},
	}
}

// newShowDetailsAction fetches show metadata from the quota-limited
// metadata provider.
func newShowDetailsAction(client actions.Caller, limiter actions.Permits, classifier remote.ErrorClassifier, lib Library) *actions.CallAction[int, ShowDetails] {
	return &actions.CallAction[int, ShowDetails]{
		Name:       "ShowDetails",
		Client:     client,
		Limiter:    limiter,
		Classifier: classifier,
		KeyParams:  func(show int) []interface{} { return []interface{}{"show", show} },
		Request: func(show int) (remote.Request, error) {
			return remote.Get(fmt.Sprintf("/tv/%d", show), nil), nil
		},
		Handle: func(ctx context.Context, show int, resp *remote.Response) (ShowDetails, error) {
			var d ShowDetails
			if err := resp.Decode(&d); err != nil {
				return ShowDetails{}, actions.Failed(err)
			}
			d.ID = show
			d.UpdatedAt = time.Now().UTC()
			if err := lib.SaveShowDetails(ctx, d); err != nil {
				return ShowDetails{}, err
			}
			return d, nil
		},
	}
}

// SyncSeason refreshes one season from the tracking service, sharing any
// refresh of the same season already in flight.
func (s *Service) SyncSeason(ctx context.Context, show, season int) (int, bool) {
	return actions.InvokeSync(ctx, s.actions, actions.Action[SeasonParams, int](s.seasons), SeasonParams{Show: show, Season: season})
}

// ShowDetails fetches metadata for show. ok is false without a metadata
// client or when the fetch failed.
func (s *Service) ShowDetails(ctx context.Context, show int) (ShowDetails, bool) {
	if s.details == nil {
		return ShowDetails{}, false
	}
	return actions.InvokeSync(ctx, s.actions, actions.Action[int, ShowDetails](s.details), show)
}
