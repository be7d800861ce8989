package governor

import (
	"net/http"
	"time"
)

// Status-aware delay floors. A rate-limited site is asking us to slow down;
// waiting less than these would just burn the retry budget.
const (
	floorTooManyRequests = 5 * time.Second
	floorUnavailable     = 3 * time.Second

	defaultRetryDelay = time.Second
)

// Backoff maps (attempt, status) to a retry delay.
//
// The delay grows exponentially: effective base doubled per attempt, where the
// effective base is the larger of Base and the status floor (never the sum).
// The zero value uses a 1s base. Backoff is stateless and safe for concurrent
// use.
type Backoff struct {
	// Base is the delay before the first retry of a failure with no
	// status-specific floor.
	Base time.Duration
}

// Delay returns the wait before retry number attempt (0-based). status is the
// HTTP status carried by the failure, or 0 when the failure had none.
func (b Backoff) Delay(attempt int, status int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = defaultRetryDelay
	}
	if f := statusFloor(status); f > base {
		base = f
	}
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		if d > maxDuration/2 {
			return maxDuration
		}
		d *= 2
	}
	return d
}

const maxDuration = time.Duration(1<<63 - 1)

func statusFloor(status int) time.Duration {
	switch status {
	case http.StatusTooManyRequests:
		return floorTooManyRequests
	case http.StatusServiceUnavailable:
		return floorUnavailable
	default:
		return 0
	}
}
