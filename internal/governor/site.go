package governor

import (
	"fmt"
	"time"
)

// Defaults for unattended scraping: few retries, multi-second base delay.
const (
	DefaultSiteRetries    = 2
	DefaultSiteRetryDelay = 2 * time.Second
)

// ForSite builds a scheduler from a site's human-friendly rate parameters:
// requestsPerMinute becomes the MinTime spacing between starts, and polite
// retry defaults are applied. Each call yields an independent scheduler; the
// name is used only for labeling.
func ForSite(name string, requestsPerMinute float64, maxConcurrent int, opts ...Option) (*Scheduler, error) {
	if requestsPerMinute <= 0 {
		return nil, fmt.Errorf("%w: requests_per_minute must be > 0 (got %g)", ErrInvalidConfig, requestsPerMinute)
	}
	cfg := Config{
		Name:          name,
		MaxConcurrent: maxConcurrent,
		MinTime:       time.Duration(float64(time.Minute) / requestsPerMinute),
		MaxRetries:    DefaultSiteRetries,
		RetryDelay:    DefaultSiteRetryDelay,
	}
	return New(cfg, opts...)
}
