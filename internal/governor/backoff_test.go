package governor

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestBackoffStatusFloors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		base    time.Duration
		status  int
		attempt int
		want    time.Duration
	}{
		{name: "plain first retry", base: time.Second, status: 0, attempt: 0, want: time.Second},
		{name: "plain doubles", base: time.Second, status: 0, attempt: 2, want: 4 * time.Second},
		{name: "429 floor", base: time.Second, status: http.StatusTooManyRequests, attempt: 0, want: 5 * time.Second},
		{name: "429 floor doubles", base: time.Second, status: http.StatusTooManyRequests, attempt: 1, want: 10 * time.Second},
		{name: "503 floor", base: time.Second, status: http.StatusServiceUnavailable, attempt: 0, want: 3 * time.Second},
		{name: "large base beats floor", base: 8 * time.Second, status: http.StatusTooManyRequests, attempt: 0, want: 8 * time.Second},
		{name: "other status uses base", base: 2 * time.Second, status: http.StatusInternalServerError, attempt: 0, want: 2 * time.Second},
		{name: "zero base defaults to 1s", base: 0, status: 0, attempt: 0, want: time.Second},
		{name: "negative attempt clamped", base: time.Second, status: 0, attempt: -3, want: time.Second},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := Backoff{Base: tt.base}
			if got := b.Delay(tt.attempt, tt.status); got != tt.want {
				t.Fatalf("Delay(%d, %d) = %v, want %v", tt.attempt, tt.status, got, tt.want)
			}
		})
	}
}

func TestBackoffGrowsMonotonically(t *testing.T) {
	t.Parallel()
	for _, status := range []int{0, http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		b := Backoff{Base: 500 * time.Millisecond}
		prev := time.Duration(0)
		for attempt := 0; attempt < 8; attempt++ {
			d := b.Delay(attempt, status)
			if d <= prev {
				t.Fatalf("status %d: Delay(%d) = %v, not greater than Delay(%d) = %v", status, attempt, d, attempt-1, prev)
			}
			prev = d
		}
	}
}

func TestBackoffOverflowClamps(t *testing.T) {
	t.Parallel()
	b := Backoff{Base: time.Hour}
	if got := b.Delay(200, 0); got != maxDuration {
		t.Fatalf("Delay(200, 0) = %v, want clamp at maxDuration", got)
	}
}

func TestRetryDelayForStatus(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Name: "test", MaxConcurrent: 1, RetryDelay: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if got := s.RetryDelayForStatus(http.StatusTooManyRequests, 0); got < 5*time.Second {
		t.Fatalf("429 first retry delay = %v, want >= 5s", got)
	}
	if got := s.RetryDelayForStatus(http.StatusServiceUnavailable, 0); got < 3*time.Second {
		t.Fatalf("503 first retry delay = %v, want >= 3s", got)
	}
}

func TestStatusFromError(t *testing.T) {
	t.Parallel()
	base := &StatusError{Code: 429, URL: "https://example.test/a"}
	wrapped := fmt.Errorf("fetch failed: %w", base)

	if code, ok := StatusFromError(wrapped); !ok || code != 429 {
		t.Fatalf("StatusFromError(wrapped) = %d, %v", code, ok)
	}
	if _, ok := StatusFromError(errors.New("plain")); ok {
		t.Fatal("plain error should carry no status")
	}
}
