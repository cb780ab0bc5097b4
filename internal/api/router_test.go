// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/episodic/internal/actions"
	"github.com/tomtom215/episodic/internal/events"
	"github.com/tomtom215/episodic/internal/jobs"
	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/metrics"
	"github.com/tomtom215/episodic/internal/tracking"
	"github.com/tomtom215/episodic/internal/trigger"
)

type fakeQueue struct {
	mu      sync.Mutex
	added   []jobs.Job
	cleared int
	err     error
}

func (q *fakeQueue) AddJob(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.added = append(q.added, job)
	return nil
}

func (q *fakeQueue) Jobs() []jobs.EntryInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]jobs.EntryInfo, len(q.added))
	for i, j := range q.added {
		out[i] = jobs.EntryInfo{ID: uint64(i + 1), Type: j.JobType(), Key: j.JobKey()}
	}
	return out
}

func (q *fakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.added)
}

func (q *fakeQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cleared += len(q.added)
	q.added = nil
}

type fakeExecutor struct {
	state jobs.ExecutorState
}

func (e fakeExecutor) State() jobs.ExecutorState { return e.state }

type fakeDrainer struct {
	mu       sync.Mutex
	pending  bool
	requests []string
	result   string
	deadline time.Time
}

func (d *fakeDrainer) Request(reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, reason)
	if d.pending {
		return false
	}
	d.pending = true
	return true
}

func (d *fakeDrainer) Drain(ctx context.Context, _ string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deadline, _ = ctx.Deadline()
	return d.result
}

type fakeActions struct {
	snapshot []actions.InFlightAction
}

func (a fakeActions) InFlight() int                      { return len(a.snapshot) }
func (a fakeActions) Snapshot() []actions.InFlightAction { return a.snapshot }

type fakeStatus struct {
	status events.Status
}

func (s fakeStatus) Status() events.Status { return s.status }

type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
	Error  *Error `json:"error"`
}

type fixture struct {
	queue   *fakeQueue
	drainer *fakeDrainer
	handler http.Handler
}

func newFixture(t *testing.T, cfg Config, acts fakeActions) *fixture {
	t.Helper()
	f := &fixture{
		queue:   &fakeQueue{},
		drainer: &fakeDrainer{result: trigger.ResultEmpty},
	}
	srv, err := NewServer(Deps{
		Queue:    f.queue,
		Executor: fakeExecutor{state: jobs.ExecutorState{Started: true, Executing: true}},
		Drainer:  f.drainer,
		Actions:  acts,
		Status:   fakeStatus{status: events.Status{Syncing: true, Failures: 1}},
	}, cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestNewServer_RequiresDeps(t *testing.T) {
	t.Parallel()
	if _, err := NewServer(Deps{}, Config{}); err == nil {
		t.Error("expected error for missing deps")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, fakeActions{snapshot: []actions.InFlightAction{{Key: "SyncSeason&show=1&season=2", Action: "SyncSeason"}}})
	f.queue.added = []jobs.Job{tracking.MovieWatchlistJob{Movie: 5, Add: true}}

	rec := f.do(http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decode[HealthResponse](t, rec)
	want := HealthResponse{Status: "ok", PendingJobs: 1, InFlightActions: 1, Syncing: true}
	if env.Data != want {
		t.Errorf("health = %+v, want %+v", env.Data, want)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing request ID header")
	}
}

func TestQueueRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, fakeActions{})
	f.queue.added = []jobs.Job{
		tracking.MovieWatchlistJob{Movie: 5, Add: true},
		tracking.MovieWatchedJob{Movie: 6, Watched: true},
	}

	rec := f.do(http.MethodGet, "/api/v1/queue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	env := decode[QueueResponse](t, rec)
	if len(env.Data.Jobs) != 2 || env.Data.Jobs[0].Type != "movie_watchlist" || env.Data.Jobs[1].Type != "movie_watched" {
		t.Errorf("jobs = %+v", env.Data.Jobs)
	}
	if !env.Data.Executor.Started || !env.Data.Executor.Executing {
		t.Errorf("executor = %+v", env.Data.Executor)
	}

	rec = f.do(http.MethodDelete, "/api/v1/queue", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if cleared := decode[map[string]int](t, rec).Data["cleared"]; cleared != 2 {
		t.Errorf("cleared = %d, want 2", cleared)
	}
	if f.queue.Len() != 0 {
		t.Errorf("queue still has %d jobs", f.queue.Len())
	}
}

func TestDrainQueue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		want       DrainResponse
	}{
		{"no body requests a drain", "", http.StatusAccepted, "", DrainResponse{Accepted: true}},
		{"wait runs the drain", `{"wait":true,"timeout_seconds":5}`, http.StatusOK, "", DrainResponse{Accepted: true, Result: trigger.ResultEmpty}},
		{"timeout out of range", `{"wait":true,"timeout_seconds":9999}`, http.StatusBadRequest, CodeValidation, DrainResponse{}},
		{"unknown field", `{"hurry":true}`, http.StatusBadRequest, CodeBadRequest, DrainResponse{}},
		{"malformed body", `{"wait":`, http.StatusBadRequest, CodeBadRequest, DrainResponse{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, Config{}, fakeActions{})
			rec := f.do(http.MethodPost, "/api/v1/queue/drain", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			env := decode[DrainResponse](t, rec)
			if tt.wantCode != "" {
				if env.Error == nil || env.Error.Code != tt.wantCode {
					t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
				}
				return
			}
			if env.Data != tt.want {
				t.Errorf("data = %+v, want %+v", env.Data, tt.want)
			}
		})
	}
}

func TestDrainQueue_Coalesced(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, fakeActions{})

	f.do(http.MethodPost, "/api/v1/queue/drain", "")
	rec := f.do(http.MethodPost, "/api/v1/queue/drain", "")
	if env := decode[DrainResponse](t, rec); env.Data.Accepted {
		t.Error("second drain request was not reported as coalesced")
	}
	if len(f.drainer.requests) != 2 || f.drainer.requests[0] != trigger.ReasonManual {
		t.Errorf("requests = %v", f.drainer.requests)
	}
}

func TestDrainQueue_WaitDeadline(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{RequestTimeout: time.Hour}, fakeActions{})

	before := time.Now()
	f.do(http.MethodPost, "/api/v1/queue/drain", `{"wait":true,"timeout_seconds":2}`)
	if remaining := f.drainer.deadline.Sub(before); remaining <= 0 || remaining > 3*time.Second {
		t.Errorf("drain deadline %v from request, want about 2s", remaining)
	}
}

func TestEnqueueJobs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantType   string
		wantKey    string
	}{
		{
			name:       "episode flag",
			path:       "/api/v1/jobs/episodes",
			body:       `{"show":42,"season":1,"episodes":[1,2],"flag":"watched","value":true}`,
			wantStatus: http.StatusAccepted,
			wantType:   "episode_flag",
			wantKey:    tracking.EpisodeFlagJob{Show: 42, Season: 1, Flag: tracking.FlagWatched, Value: true}.JobKey(),
		},
		{
			name:       "episode flag without episodes",
			path:       "/api/v1/jobs/episodes",
			body:       `{"show":42,"season":1,"episodes":[],"flag":"watched","value":true}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "episode flag with unknown flag",
			path:       "/api/v1/jobs/episodes",
			body:       `{"show":42,"season":1,"episodes":[1],"flag":"loved","value":true}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "movie watchlist",
			path:       "/api/v1/jobs/movies/watchlist",
			body:       `{"movie":7,"add":true}`,
			wantStatus: http.StatusAccepted,
			wantType:   "movie_watchlist",
			wantKey:    tracking.MovieWatchlistJob{Movie: 7, Add: true}.JobKey(),
		},
		{
			name:       "movie watched",
			path:       "/api/v1/jobs/movies/watched",
			body:       `{"movie":7,"watched":true}`,
			wantStatus: http.StatusAccepted,
			wantType:   "movie_watched",
			wantKey:    tracking.MovieWatchedJob{Movie: 7, Watched: true}.JobKey(),
		},
		{
			name:       "movie without id",
			path:       "/api/v1/jobs/movies/watched",
			body:       `{"watched":true}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, Config{}, fakeActions{})
			rec := f.do(http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusAccepted {
				if f.queue.Len() != 0 {
					t.Error("invalid job was enqueued")
				}
				return
			}
			env := decode[EnqueueResponse](t, rec)
			if env.Data.Type != tt.wantType || env.Data.Key != tt.wantKey {
				t.Errorf("enqueued %+v, want %s %s", env.Data, tt.wantType, tt.wantKey)
			}
			if f.queue.Len() != 1 {
				t.Errorf("queue has %d jobs, want 1", f.queue.Len())
			}
		})
	}
}

func TestEnqueueJobs_QueueError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, fakeActions{})
	f.queue.err = errors.New("unknown job type")

	rec := f.do(http.MethodPost, "/api/v1/jobs/movies/watchlist", `{"movie":7,"add":true}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if env := decode[EnqueueResponse](t, rec); env.Error == nil || env.Error.Code != CodeQueue {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestActionsAndStatus(t *testing.T) {
	t.Parallel()

	t.Run("no actions is an empty list", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Config{}, fakeActions{})
		rec := f.do(http.MethodGet, "/api/v1/actions", "")
		if !strings.Contains(rec.Body.String(), `"data":[]`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("in-flight actions are listed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Config{}, fakeActions{snapshot: []actions.InFlightAction{
			{Key: "SyncHistory&limit=100", Action: "SyncHistory", Running: time.Second},
		}})
		env := decode[[]actions.InFlightAction](t, f.do(http.MethodGet, "/api/v1/actions", ""))
		if len(env.Data) != 1 || env.Data[0].Action != "SyncHistory" {
			t.Errorf("actions = %+v", env.Data)
		}
	})

	t.Run("sync status", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Config{}, fakeActions{})
		env := decode[events.Status](t, f.do(http.MethodGet, "/api/v1/sync/status", ""))
		if !env.Data.Syncing || env.Data.Failures != 1 {
			t.Errorf("status = %+v", env.Data)
		}
	})
}

func TestMetricsAndNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, fakeActions{})

	rec := f.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "episodic_") {
		t.Errorf("metrics status = %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if env := decode[any](t, rec); env.Error == nil || env.Error.Code != CodeNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{RateLimitReqs: 2, RateLimitWindow: time.Minute}, fakeActions{})

	for i := 0; i < 2; i++ {
		if rec := f.do(http.MethodGet, "/api/v1/health", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := f.do(http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a\nb", `a\x0ab`},
		{"tab\there", `tab\x09here`},
	}
	for _, tt := range tests {
		if got := sanitizeLogValue(tt.in); got != tt.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInstrumentRecordsRoutePattern(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, fakeActions{})
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/sync/status", "200")
	before := testutil.ToFloat64(counter)

	f.do(http.MethodGet, "/api/v1/sync/status", "")

	if got := testutil.ToFloat64(counter) - before; got < 1 {
		t.Errorf("requests recorded = %v, want at least 1", got)
	}
}

func TestRequestIDWithLogging(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := logging.NewTestLogger(&buf).With().Str("component", "api").Logger()

	var correlationID string
	h := requestIDWithLogging(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID = logging.CorrelationIDFromContext(r.Context())
		logging.Ctx(r.Context()).Info().Msg("handled")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	id := rec.Header().Get("X-Request-Id")
	if id == "" || id != correlationID {
		t.Fatalf("request id header = %q, correlation id = %q", id, correlationID)
	}
	out := buf.String()
	if !strings.Contains(out, `"component":"api"`) || !strings.Contains(out, `"correlation_id":"`+id+`"`) {
		t.Errorf("request log missing logger fields: %s", out)
	}
}
