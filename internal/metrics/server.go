// Package metrics provides a simple Prometheus-compatible metrics endpoint.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds runtime counters for the coordination server.
type Metrics struct {
	// Session lifecycle
	SessionsStarted atomic.Int64
	SessionsEnded   atomic.Int64

	// Ledger and queue
	ResponsesAppended  atomic.Int64
	AnnotationsAdded   atomic.Int64
	AnnotationsDrained atomic.Int64

	// Background work
	StatusPolls      atomic.Int64
	StatusPollErrors atomic.Int64
	TranscriptScans  atomic.Int64

	// Fan-out
	EventsBroadcast  atomic.Int64
	ObserversDropped atomic.Int64

	startTime time.Time
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Global returns the global metrics instance.
func Global() *Metrics {
	globalOnce.Do(func() {
		global = &Metrics{
			startTime: time.Now(),
		}
	})
	return global
}

// RecordStatusPoll records one repository status fetch attempt.
func (m *Metrics) RecordStatusPoll(success bool) {
	m.StatusPolls.Add(1)
	if !success {
		m.StatusPollErrors.Add(1)
	}
}

// Handler returns an HTTP handler serving the counters in Prometheus text
// exposition format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		uptime := time.Since(m.startTime).Seconds()

		fmt.Fprintf(w, "# HELP noshop_uptime_seconds Time since the server started\n")
		fmt.Fprintf(w, "# TYPE noshop_uptime_seconds gauge\n")
		fmt.Fprintf(w, "noshop_uptime_seconds %.2f\n\n", uptime)

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s counter\n", name)
			fmt.Fprintf(w, "%s %d\n\n", name, v)
		}

		counter("noshop_sessions_started_total", "Total session registrations", m.SessionsStarted.Load())
		counter("noshop_sessions_ended_total", "Total session end notifications", m.SessionsEnded.Load())
		counter("noshop_responses_appended_total", "Total captured response entries", m.ResponsesAppended.Load())
		counter("noshop_annotations_added_total", "Total annotations queued", m.AnnotationsAdded.Load())
		counter("noshop_annotations_drained_total", "Total annotations delivered via drain", m.AnnotationsDrained.Load())
		counter("noshop_status_polls_total", "Total repository status fetches", m.StatusPolls.Load())
		counter("noshop_status_poll_errors_total", "Total failed repository status fetches", m.StatusPollErrors.Load())
		counter("noshop_transcript_scans_total", "Total transcript log scans", m.TranscriptScans.Load())
		counter("noshop_events_broadcast_total", "Total events fanned out to observers", m.EventsBroadcast.Load())
		counter("noshop_observers_dropped_total", "Total observers dropped for falling behind", m.ObserversDropped.Load())
	}
}
