// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordJobRun(t *testing.T) {
	before := testutil.ToFloat64(JobsCompleted.WithLabelValues("test_job", "failure"))

	RecordJobRun("test_job", "failure", 15*time.Millisecond)
	RecordJobRun("test_job", "failure", 20*time.Millisecond)

	after := testutil.ToFloat64(JobsCompleted.WithLabelValues("test_job", "failure"))
	if after-before != 2 {
		t.Errorf("expected 2 failures recorded, got %v", after-before)
	}
}

func TestRecordActionResult(t *testing.T) {
	RecordActionResult("TestAction", "success", 5*time.Millisecond)

	observer, err := ActionDuration.GetMetricWithLabelValues("TestAction")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	m := &dto.Metric{}
	if err := observer.(prometheus.Histogram).Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.GetHistogram().GetSampleCount() == 0 {
		t.Error("expected at least one duration sample")
	}
}

func TestRecordSyncRun(t *testing.T) {
	failBefore := testutil.ToFloat64(SyncRuns.WithLabelValues("failure"))

	RecordSyncRun(errors.New("remote unavailable"))
	RecordSyncRun(nil)

	if got := testutil.ToFloat64(SyncRuns.WithLabelValues("failure")) - failBefore; got != 1 {
		t.Errorf("expected one failure, got %v", got)
	}
	if testutil.ToFloat64(SyncLastSuccess) == 0 {
		t.Error("expected last success timestamp to be set")
	}
}

func TestSetBool(t *testing.T) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_bool"})

	SetBool(g, true)
	if testutil.ToFloat64(g) != 1 {
		t.Error("expected 1")
	}
	SetBool(g, false)
	if testutil.ToFloat64(g) != 0 {
		t.Error("expected 0")
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/queue", "200"))

	RecordAPIRequest("GET", "/api/v1/queue", "200", time.Millisecond)

	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/queue", "200")) - before; got != 1 {
		t.Errorf("expected one request recorded, got %v", got)
	}
}
