package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsGlobal(t *testing.T) {
	m1 := Global()
	m2 := Global()

	if m1 != m2 {
		t.Error("Global() should return same instance")
	}
}

func TestRecordStatusPoll(t *testing.T) {
	m := &Metrics{startTime: time.Now()}

	m.RecordStatusPoll(true)
	if m.StatusPolls.Load() != 1 {
		t.Errorf("expected 1 poll, got %d", m.StatusPolls.Load())
	}
	if m.StatusPollErrors.Load() != 0 {
		t.Errorf("expected 0 errors, got %d", m.StatusPollErrors.Load())
	}

	m.RecordStatusPoll(false)
	if m.StatusPolls.Load() != 2 {
		t.Errorf("expected 2 polls, got %d", m.StatusPolls.Load())
	}
	if m.StatusPollErrors.Load() != 1 {
		t.Errorf("expected 1 error, got %d", m.StatusPollErrors.Load())
	}
}

func TestHandlerExposition(t *testing.T) {
	m := &Metrics{startTime: time.Now()}
	m.SessionsStarted.Add(3)
	m.ResponsesAppended.Add(7)
	m.ObserversDropped.Add(1)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	for _, want := range []string{
		"noshop_uptime_seconds",
		"noshop_sessions_started_total 3",
		"noshop_responses_appended_total 7",
		"noshop_observers_dropped_total 1",
		"# TYPE noshop_sessions_started_total counter",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
