package relay

import "testing"

func TestConnLimiterAllowsBurstThenThrottles(t *testing.T) {
	l := newConnLimiter(1, 2)

	if !l.Allow("1.2.3.4:5000") || !l.Allow("1.2.3.4:5001") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow("1.2.3.4:5002") {
		t.Error("expected third rapid attempt from the same host to be throttled")
	}
}

func TestConnLimiterTracksDistinctHostsSeparately(t *testing.T) {
	l := newConnLimiter(1, 1)

	if !l.Allow("1.2.3.4:1") {
		t.Fatal("expected first attempt from host A to be allowed")
	}
	if !l.Allow("5.6.7.8:1") {
		t.Error("expected first attempt from host B to be allowed independently of host A")
	}
}

func TestConnLimiterSweepDropsIdleEntries(t *testing.T) {
	l := newConnLimiter(1, 1)
	l.Allow("1.2.3.4:1")

	l.sweep(0)

	if len(l.limiters) != 0 {
		t.Errorf("limiters len = %d, want 0 after sweeping with zero max idle", len(l.limiters))
	}
}
