package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically evicts sessions that ended more than EndedRetention
// ago, the same start/stop ticker-goroutine shape the teacher uses for its
// background sync loops, grounded on original_source/src/relay_server/app.py's
// reap_loop (a sleep-and-sweep task registered on startup).
type Reaper struct {
	manager  *Manager
	interval time.Duration
	retain   time.Duration
	logger   *zap.Logger

	metrics *Metrics
}

// NewReaper constructs a Reaper that sweeps manager every interval,
// evicting sessions ended more than retain ago.
func NewReaper(manager *Manager, interval, retain time.Duration, logger *zap.Logger, metrics *Metrics) *Reaper {
	return &Reaper{
		manager:  manager,
		interval: interval,
		retain:   retain,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run blocks, sweeping on every tick until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	now := time.Now()
	evicted := 0
	for _, sess := range r.manager.All() {
		ended := sess.EndedAt()
		if ended == nil {
			continue
		}
		if now.Sub(*ended) <= r.retain {
			continue
		}
		r.manager.Evict(sess.OwnerID, sess.ID)
		evicted++
	}
	if evicted > 0 && r.logger != nil {
		r.logger.Info("reaper evicted sessions", zap.Int("count", evicted))
	}
	if r.metrics != nil {
		r.metrics.ReaperSweeps.Inc()
		r.metrics.SessionsEvicted.Add(float64(evicted))
		r.metrics.ActiveSessions.Set(float64(r.manager.Count()))
	}
}
