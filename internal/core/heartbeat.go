package core

import (
	"context"
	"time"

	"github.com/bdmorin/the-no-shop/internal/domain"
)

// RunHeartbeat re-scans every session with a known transcript log on a fixed
// cadence and broadcasts a stats event only when a derived value actually
// changed since the last applied scan. Blocks until ctx is cancelled.
func (r *Registry) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.heartbeat()
		}
	}
}

// heartbeat performs one sweep; split out so tests can drive it directly.
func (r *Registry) heartbeat() {
	type target struct {
		id   string
		path string
	}

	r.mu.Lock()
	targets := make([]target, 0, len(r.sessions))
	for _, sess := range r.sessions {
		if sess.TranscriptPath != "" {
			targets = append(targets, target{id: sess.ID, path: sess.TranscriptPath})
		}
	}
	r.mu.Unlock()

	for _, tg := range targets {
		st := r.stats.Stats(tg.id, tg.path)

		r.mu.Lock()
		if r.lastStats[tg.id] == st {
			r.mu.Unlock()
			continue
		}
		sess := r.sessions[tg.id]
		if sess == nil {
			r.mu.Unlock()
			continue
		}
		applyStats(sess, st)
		r.lastStats[tg.id] = st
		out := copySession(sess)
		r.mu.Unlock()

		r.emit(domain.Event{Type: domain.EventStatsChanged, SessionID: tg.id, Session: out})
	}
}
