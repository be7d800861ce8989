package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"sitepacer/internal/eventbus"
	"sitepacer/internal/governor"
	"sitepacer/internal/sweep"
)

func TestCollectorCountsJobEvents(t *testing.T) {
	// Sites are unique per test because the underlying metrics are global.
	const site = "collector-test-jobs"

	bus := eventbus.New()
	c := NewCollector(bus, nil)
	c.Start()
	defer c.Stop()

	bus.Publish(eventbus.Event{Type: "job.started", Data: governor.JobEvent{Site: site, Attempt: 1}})
	bus.Publish(eventbus.Event{Type: "job.retrying", Data: governor.JobEvent{Site: site, Attempt: 1, Error: "transient"}})
	bus.Publish(eventbus.Event{Type: "job.succeeded", Data: governor.JobEvent{Site: site, Attempt: 2, Duration: 120 * time.Millisecond}})
	bus.Publish(eventbus.Event{Type: "sweep.triggered", Data: sweep.Report{Site: site, Seeds: 2}})

	waitFor(t, func() bool {
		return testutil.ToFloat64(JobsSucceeded.WithLabelValues(site)) == 1
	})

	if got := testutil.ToFloat64(JobsStarted.WithLabelValues(site)); got != 1 {
		t.Fatalf("jobs_started_total = %g, want 1", got)
	}
	if got := testutil.ToFloat64(JobRetries.WithLabelValues(site)); got != 1 {
		t.Fatalf("job_retries_total = %g, want 1", got)
	}
	if got := testutil.ToFloat64(SweepsTriggered.WithLabelValues(site, "ok")); got != 1 {
		t.Fatalf("sweeps_triggered_total = %g, want 1", got)
	}
}

func TestCollectorPollsGauges(t *testing.T) {
	const site = "collector-test-gauges"

	stats := func() []governor.Stats {
		return []governor.Stats{{
			Site:      site,
			Running:   2,
			Queued:    5,
			Reservoir: governor.ReservoirUnlimited,
		}}
	}
	c := NewCollector(eventbus.New(), stats)
	c.Start()
	defer c.Stop()

	// Start polls once immediately.
	waitFor(t, func() bool {
		return testutil.ToFloat64(QueueDepth.WithLabelValues(site)) == 5
	})
	if got := testutil.ToFloat64(JobsRunning.WithLabelValues(site)); got != 2 {
		t.Fatalf("jobs_running = %g, want 2", got)
	}
	if got := testutil.ToFloat64(ReservoirLevel.WithLabelValues(site)); got != -1 {
		t.Fatalf("reservoir_level = %g, want -1 (unlimited)", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
