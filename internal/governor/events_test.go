package governor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sitepacer/internal/eventbus"
)

func TestBusEventsMatchLifecycle(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	defer unsub()

	s, err := New(
		Config{Name: "bus-test", MaxConcurrent: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond},
		WithBus(bus),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	var calls atomic.Int32
	h := s.Schedule(func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return nil, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	counts := map[string]int{}
	deadline := time.After(2 * time.Second)
	for counts["job.succeeded"] == 0 {
		select {
		case ev := <-events:
			counts[ev.Type]++
			if je, ok := ev.Data.(JobEvent); ok && je.Site != "bus-test" {
				t.Fatalf("event for site %q, want bus-test", je.Site)
			}
		case <-deadline:
			t.Fatalf("missing terminal event; saw %v", counts)
		}
	}

	// One failed attempt, one successful: two starts, one retry, one success,
	// no terminal failure.
	if counts["job.started"] != 2 {
		t.Fatalf("job.started = %d, want 2", counts["job.started"])
	}
	if counts["job.retrying"] != 1 {
		t.Fatalf("job.retrying = %d, want 1", counts["job.retrying"])
	}
	if counts["job.failed"] != 0 {
		t.Fatalf("job.failed = %d, want 0", counts["job.failed"])
	}
}
