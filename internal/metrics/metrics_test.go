package metrics

import (
	"errors"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCycleCounters(t *testing.T) {
	m := New()
	m.Cycle(CycleFound)
	m.Cycle(CycleFound)
	m.Cycle(CycleNotFound)

	body := scrape(t, m)
	if !strings.Contains(body, `sentinel_watch_cycles_total{outcome="found"} 2`) {
		t.Error("found cycles should be 2")
	}
	if !strings.Contains(body, `sentinel_watch_cycles_total{outcome="notfound"} 1`) {
		t.Error("notfound cycles should be 1")
	}
}

func TestVerdictGauges(t *testing.T) {
	m := New()
	if !math.IsNaN(m.LastDistance()) {
		t.Error("distance should start as NaN")
	}

	m.SetVerdict(true, 0.02)
	if m.MatchPending.Load() != 1 || m.LastDistance() != 0.02 {
		t.Errorf("after found: pending=%d distance=%v", m.MatchPending.Load(), m.LastDistance())
	}

	m.SetVerdict(false, 0)
	if m.MatchPending.Load() != 0 || !math.IsNaN(m.LastDistance()) {
		t.Error("not found should clear pending and distance")
	}
}

func TestObserveStep(t *testing.T) {
	m := New()
	m.ObserveStep("capture", 20*time.Millisecond, nil)
	m.ObserveStep("capture", time.Second, errors.New("x"))

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() == "sentinel_step_duration_seconds" {
			if n := len(f.GetMetric()); n != 2 {
				t.Errorf("step series = %d, want 2", n)
			}
			return
		}
	}
	t.Error("step histogram not registered")
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetWatching(true)
	m.WindowLost()
	m.Alert("played")
	m.BreakerState("alert", 1)

	body := scrape(t, m)
	for _, want := range []string{
		"sentinel_watching 1",
		"sentinel_window_lost_total 1",
		`sentinel_alerts_total{outcome="played"} 1`,
		`sentinel_breaker_state{breaker="alert"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}
