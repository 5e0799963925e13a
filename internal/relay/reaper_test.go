package relay

import (
	"context"
	"testing"
	"time"
)

func TestReaperSweepEvictsPastRetention(t *testing.T) {
	m := NewManager(1024)
	stale, _ := m.GetOrCreate("owner-1", "stale")
	stale.End()
	// Force the ended timestamp far enough into the past to pass a
	// near-zero retention window without sleeping in the test.
	past := time.Now().Add(-time.Hour)
	stale.endedAt = &past

	fresh, _ := m.GetOrCreate("owner-1", "fresh")
	fresh.End()

	r := NewReaper(m, time.Millisecond, time.Minute, nil, nil)
	r.sweep()

	if _, ok := m.Get("owner-1", "stale"); ok {
		t.Error("expected stale ended session to be evicted")
	}
	if _, ok := m.Get("owner-1", "fresh"); !ok {
		t.Error("expected freshly-ended session to survive the sweep")
	}
}

func TestReaperLeavesActiveSessionsAlone(t *testing.T) {
	m := NewManager(1024)
	m.GetOrCreate("owner-1", "active")

	r := NewReaper(m, time.Millisecond, time.Nanosecond, nil, nil)
	r.sweep()

	if _, ok := m.Get("owner-1", "active"); !ok {
		t.Error("expected active session to survive the sweep regardless of retention")
	}
}

func TestReaperSweepUpdatesMetrics(t *testing.T) {
	m := NewManager(1024)
	stale, _ := m.GetOrCreate("owner-1", "stale")
	stale.End()
	past := time.Now().Add(-time.Hour)
	stale.endedAt = &past

	metrics := newTestMetrics()
	r := NewReaper(m, time.Millisecond, time.Minute, nil, metrics)
	r.sweep()

	if got := testutilCounterValue(metrics.SessionsEvicted); got != 1 {
		t.Errorf("sessions evicted = %v, want 1", got)
	}
}

func TestReaperRunStopsOnContextCancel(t *testing.T) {
	m := NewManager(1024)
	r := NewReaper(m, time.Millisecond, time.Hour, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
