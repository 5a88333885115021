package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	if timer.start.IsZero() {
		t.Fatal("NewTimer() start time is zero")
	}

	time.Sleep(20 * time.Millisecond)
	first := timer.Duration()
	if first < 20*time.Millisecond {
		t.Errorf("Duration() = %v, want >= 20ms", first)
	}

	time.Sleep(5 * time.Millisecond)
	if second := timer.Duration(); second <= first {
		t.Errorf("Duration() should keep growing: first=%v, second=%v", first, second)
	}
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "test_drain_seconds", Help: "test"},
		[]string{"mode"},
	)

	NewTimer().ObserveDurationVec(vec, "worker")
	NewTimer().ObserveDurationVec(vec, "worker")
	NewTimer().ObserveDurationVec(vec, "catchup")

	if n := testutil.CollectAndCount(vec); n != 2 {
		t.Errorf("expected 2 label series, got %d", n)
	}
}

type fakeBacklog struct{ n int }

func (f fakeBacklog) TaskBacklog(_ context.Context) (int, error) { return f.n, nil }

func TestCollectorSetsBacklog(t *testing.T) {
	c := NewCollector(fakeBacklog{n: 7}, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(TaskStoreBacklog); got != 7 {
		t.Errorf("expected backlog 7, got %v", got)
	}
}
