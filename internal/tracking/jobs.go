// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/episodic/internal/actions"
	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/remote"
)

// ErrRefreshFailed is returned by a job whose upload succeeded but whose
// follow-up refresh did not. The job is retried; uploads are idempotent.
var ErrRefreshFailed = errors.New("tracking: refresh after upload failed")

// EpisodeFlagJob sets or clears a flag on episodes of one season.
type EpisodeFlagJob struct {
	Show     int       `json:"show" validate:"required,gt=0"`
	Season   int       `json:"season" validate:"gte=0"`
	Episodes []int     `json:"episodes" validate:"required,min=1,dive,gt=0"`
	Flag     Flag      `json:"flag" validate:"required,oneof=watched collected"`
	Value    bool      `json:"value"`
	At       time.Time `json:"at,omitempty"`
}

// JobType implements jobs.Job.
func (EpisodeFlagJob) JobType() string { return "episode_flag" }

// JobKey implements jobs.Job.
func (j EpisodeFlagJob) JobKey() string {
	return actions.Key(string(j.Flag), "show", j.Show, "season", j.Season, "value", j.Value)
}

// MovieWatchlistJob adds a movie to or removes it from the watchlist.
type MovieWatchlistJob struct {
	Movie int  `json:"movie" validate:"required,gt=0"`
	Add   bool `json:"add"`
}

// JobType implements jobs.Job.
func (MovieWatchlistJob) JobType() string { return "movie_watchlist" }

// JobKey implements jobs.Job.
func (j MovieWatchlistJob) JobKey() string {
	return actions.Key("watchlist", "movie", j.Movie, "add", j.Add)
}

// MovieWatchedJob marks a movie watched or unwatched.
type MovieWatchedJob struct {
	Movie   int       `json:"movie" validate:"required,gt=0"`
	Watched bool      `json:"watched"`
	At      time.Time `json:"at,omitempty"`
}

// JobType implements jobs.Job.
func (MovieWatchedJob) JobType() string { return "movie_watched" }

// JobKey implements jobs.Job.
func (j MovieWatchedJob) JobKey() string {
	return actions.Key("watched", "movie", j.Movie, "value", j.Watched)
}

// JobPriority implements jobs.Prioritized. Watched state is what the user
// notices first.
func (MovieWatchedJob) JobPriority() int { return 1 }

func (s *Service) performEpisodeFlag(ctx context.Context, j EpisodeFlagJob) error {
	if !j.Flag.Valid() {
		return fmt.Errorf("tracking: unknown episode flag %q", j.Flag)
	}

	var at *time.Time
	if j.Flag == FlagWatched && j.Value && !j.At.IsZero() {
		at = &j.At
	}
	eps := make([]syncEpisode, len(j.Episodes))
	for i, n := range j.Episodes {
		eps[i] = syncEpisode{Number: n, WatchedAt: at}
	}
	body := syncItems{Shows: []syncShow{{
		IDs:     IDs{Trakt: j.Show},
		Seasons: []syncSeason{{Number: j.Season, Episodes: eps}},
	}}}

	if err := s.upload(ctx, syncPath(j.Flag, j.Value), body); err != nil {
		return err
	}
	if err := s.library.SetEpisodeFlag(ctx, j.Show, j.Season, j.Episodes, j.Flag, j.Value); err != nil {
		return err
	}
	if j.Flag != FlagWatched {
		return nil
	}

	if _, ok := s.SyncSeason(ctx, j.Show, j.Season); !ok {
		return fmt.Errorf("%w: show %d season %d", ErrRefreshFailed, j.Show, j.Season)
	}
	return nil
}

func (s *Service) performMovieWatchlist(ctx context.Context, j MovieWatchlistJob) error {
	path := "/sync/watchlist"
	if !j.Add {
		path += "/remove"
	}
	body := syncItems{Movies: []syncMovie{{IDs: IDs{Trakt: j.Movie}}}}
	if err := s.upload(ctx, path, body); err != nil {
		return err
	}
	return s.library.SetMovieWatchlisted(ctx, j.Movie, j.Add)
}

func (s *Service) performMovieWatched(ctx context.Context, j MovieWatchedJob) error {
	movie := syncMovie{IDs: IDs{Trakt: j.Movie}}
	at := j.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if j.Watched {
		movie.WatchedAt = &at
	}
	if err := s.upload(ctx, syncPath(FlagWatched, j.Watched), syncItems{Movies: []syncMovie{movie}}); err != nil {
		return err
	}
	// Watching a movie takes it off the watchlist on the remote side too.
	if j.Watched {
		if err := s.library.SetMovieWatchlisted(ctx, j.Movie, false); err != nil {
			return err
		}
	}
	return s.library.SetMovieWatched(ctx, j.Movie, j.Watched, at)
}

func syncPath(flag Flag, value bool) string {
	path := "/sync/history"
	if flag == FlagCollected {
		path = "/sync/collection"
	}
	if !value {
		path += "/remove"
	}
	return path
}

// upload posts a sync mutation. Benign statuses count as success.
func (s *Service) upload(ctx context.Context, path string, body syncItems) error {
	resp, err := s.tracker.Do(ctx, remote.Post(path, body))
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	if !resp.Success {
		if s.classifier.IsError(resp) {
			return fmt.Errorf("upload %s: %w", path, remote.NewStatusError(resp))
		}
		return nil
	}

	var result syncResult
	if err := resp.Decode(&result); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("path", path).Msg("Ignoring undecodable sync result")
		return nil
	}
	if n := len(result.NotFound.Shows) + len(result.NotFound.Movies); n > 0 {
		logging.Ctx(ctx).Warn().Int("not_found", n).Str("path", path).Msg("Remote service did not recognize some items")
	}
	return nil
}
