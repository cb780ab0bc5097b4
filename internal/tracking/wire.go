// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package tracking

import "time"

// Remote payloads of the tracking service's sync endpoints.

// IDs identifies an item on the tracking service.
type IDs struct {
	Trakt int    `json:"trakt"`
	Slug  string `json:"slug,omitempty"`
	TMDB  int    `json:"tmdb,omitempty"`
}

type syncEpisode struct {
	Number    int        `json:"number"`
	WatchedAt *time.Time `json:"watched_at,omitempty"`
}

type syncSeason struct {
	Number   int           `json:"number"`
	Episodes []syncEpisode `json:"episodes"`
}

type syncShow struct {
	IDs     IDs          `json:"ids"`
	Seasons []syncSeason `json:"seasons"`
}

type syncMovie struct {
	IDs       IDs        `json:"ids"`
	WatchedAt *time.Time `json:"watched_at,omitempty"`
}

// syncItems is the body of every /sync/* mutation.
type syncItems struct {
	Shows  []syncShow  `json:"shows,omitempty"`
	Movies []syncMovie `json:"movies,omitempty"`
}

// syncResult is the response body of /sync/* mutations.
type syncResult struct {
	Added    map[string]int `json:"added,omitempty"`
	Deleted  map[string]int `json:"deleted,omitempty"`
	NotFound struct {
		Shows  []struct{ IDs IDs } `json:"shows"`
		Movies []struct{ IDs IDs } `json:"movies"`
	} `json:"not_found"`
}

// showProgress is the body of /shows/{id}/progress/watched.
type showProgress struct {
	Seasons []struct {
		Number   int `json:"number"`
		Episodes []struct {
			Number    int  `json:"number"`
			Completed bool `json:"completed"`
		} `json:"episodes"`
	} `json:"seasons"`
}

// HistoryItem is one entry of the user's watched history.
type HistoryItem struct {
	ID        int64     `json:"id"`
	WatchedAt time.Time `json:"watched_at"`
	Action    string    `json:"action"`
	Type      string    `json:"type"`
	Episode   *struct {
		Season int `json:"season"`
		Number int `json:"number"`
	} `json:"episode,omitempty"`
	Show *struct {
		Title string `json:"title"`
		IDs   IDs    `json:"ids"`
	} `json:"show,omitempty"`
	Movie *struct {
		Title string `json:"title"`
		IDs   IDs    `json:"ids"`
	} `json:"movie,omitempty"`
}
