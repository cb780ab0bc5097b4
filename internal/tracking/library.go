// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package tracking

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Flag is a per-episode state tracked by the remote service.
type Flag string

const (
	FlagWatched   Flag = "watched"
	FlagCollected Flag = "collected"
)

// Valid reports whether f is a known flag.
func (f Flag) Valid() bool {
	return f == FlagWatched || f == FlagCollected
}

// ShowDetails is descriptive show metadata from the metadata provider.
type ShowDetails struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Overview  string    `json:"overview"`
	Status    string    `json:"status"`
	Seasons   int       `json:"number_of_seasons"`
	UpdatedAt time.Time `json:"-"`
}

// Library is the local media store. It is the source of truth for what the
// user sees and is reconciled with the remote service by jobs and actions.
type Library interface {
	SetEpisodeFlag(ctx context.Context, show, season int, episodes []int, flag Flag, value bool) error
	ReplaceSeasonWatched(ctx context.Context, show, season int, watched []int) error
	SetMovieWatchlisted(ctx context.Context, movie int, value bool) error
	SetMovieWatched(ctx context.Context, movie int, value bool, at time.Time) error
	RecordHistory(ctx context.Context, items []HistoryItem) error
	SetLastHistorySync(ctx context.Context, at time.Time) error
	SaveShowDetails(ctx context.Context, details ShowDetails) error
	ShowsMissingDetails(ctx context.Context) ([]int, error)
}

type seasonRef struct {
	show, season int
}

// MemoryLibrary is an in-memory Library.
type MemoryLibrary struct {
	mu              sync.Mutex
	flags           map[Flag]map[seasonRef]map[int]bool
	watchlist       map[int]bool
	watchedMovies   map[int]time.Time
	history         map[int64]HistoryItem
	shows           map[int]bool
	details         map[int]ShowDetails
	lastHistorySync time.Time
}

// NewMemoryLibrary returns an empty library.
func NewMemoryLibrary() *MemoryLibrary {
	return &MemoryLibrary{
		flags: map[Flag]map[seasonRef]map[int]bool{
			FlagWatched:   {},
			FlagCollected: {},
		},
		watchlist:     make(map[int]bool),
		watchedMovies: make(map[int]time.Time),
		history:       make(map[int64]HistoryItem),
		shows:         make(map[int]bool),
		details:       make(map[int]ShowDetails),
	}
}

func (l *MemoryLibrary) episodes(flag Flag, ref seasonRef) map[int]bool {
	eps, ok := l.flags[flag][ref]
	if !ok {
		eps = make(map[int]bool)
		l.flags[flag][ref] = eps
	}
	return eps
}

// SetEpisodeFlag implements Library.
func (l *MemoryLibrary) SetEpisodeFlag(_ context.Context, show, season int, episodes []int, flag Flag, value bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shows[show] = true
	eps := l.episodes(flag, seasonRef{show, season})
	for _, e := range episodes {
		if value {
			eps[e] = true
		} else {
			delete(eps, e)
		}
	}
	return nil
}

// ReplaceSeasonWatched implements Library.
func (l *MemoryLibrary) ReplaceSeasonWatched(_ context.Context, show, season int, watched []int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shows[show] = true
	eps := make(map[int]bool, len(watched))
	for _, e := range watched {
		eps[e] = true
	}
	l.flags[FlagWatched][seasonRef{show, season}] = eps
	return nil
}

// SetMovieWatchlisted implements Library.
func (l *MemoryLibrary) SetMovieWatchlisted(_ context.Context, movie int, value bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if value {
		l.watchlist[movie] = true
	} else {
		delete(l.watchlist, movie)
	}
	return nil
}

// SetMovieWatched implements Library.
func (l *MemoryLibrary) SetMovieWatched(_ context.Context, movie int, value bool, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if value {
		l.watchedMovies[movie] = at
	} else {
		delete(l.watchedMovies, movie)
	}
	return nil
}

// RecordHistory implements Library. Items are keyed by their history ID,
// so recording a page twice is harmless.
func (l *MemoryLibrary) RecordHistory(_ context.Context, items []HistoryItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range items {
		l.history[it.ID] = it
		if it.Show != nil {
			l.shows[it.Show.IDs.Trakt] = true
		}
	}
	return nil
}

// SetLastHistorySync implements Library.
func (l *MemoryLibrary) SetLastHistorySync(_ context.Context, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastHistorySync = at
	return nil
}

// SaveShowDetails implements Library.
func (l *MemoryLibrary) SaveShowDetails(_ context.Context, d ShowDetails) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shows[d.ID] = true
	l.details[d.ID] = d
	return nil
}

// ShowsMissingDetails implements Library.
func (l *MemoryLibrary) ShowsMissingDetails(_ context.Context) ([]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []int
	for id := range l.shows {
		if _, ok := l.details[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out, nil
}

// Episodes returns the sorted episode numbers of a season carrying flag.
func (l *MemoryLibrary) Episodes(show, season int, flag Flag) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []int
	for e := range l.flags[flag][seasonRef{show, season}] {
		out = append(out, e)
	}
	sort.Ints(out)
	return out
}

// Watchlisted reports whether movie is on the watchlist.
func (l *MemoryLibrary) Watchlisted(movie int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watchlist[movie]
}

// MovieWatchedAt returns when movie was watched.
func (l *MemoryLibrary) MovieWatchedAt(movie int) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.watchedMovies[movie]
	return at, ok
}

// HistoryLen returns the number of recorded history items.
func (l *MemoryLibrary) HistoryLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// LastHistorySync returns when history was last fully synced.
func (l *MemoryLibrary) LastHistorySync() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHistorySync
}

// Details returns stored show details.
func (l *MemoryLibrary) Details(show int) (ShowDetails, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.details[show]
	return d, ok
}

var _ Library = (*MemoryLibrary)(nil)
