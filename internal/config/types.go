package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Fetch   FetchConfig   `json:"fetch"`
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// Sites lists the external sites this process is allowed to fetch from.
	// Each entry yields one independent governor.
	Sites []SiteConfig `json:"sites"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// FetchConfig controls the shared HTTP client.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type FetchConfig struct {
	UserAgent string `json:"user_agent,omitempty"`
	Timeout   string `json:"timeout,omitempty"`

	// GlobalRatePerSec is a process-wide fetch ceiling across all sites,
	// applied on top of per-site pacing. 0 disables it.
	GlobalRatePerSec float64 `json:"global_rate_per_sec,omitempty"`
}

// MetricsConfig controls the optional Prometheus listener.
//
// Security note: prefer binding to localhost (e.g. "127.0.0.1:9090").
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen,omitempty"` // default: "127.0.0.1:9090"
}

// SiteConfig describes one external site and its tolerance for being fetched.
//
// requests_per_minute and max_concurrent are required; the rest are optional
// refinements. All durations are Go duration strings.
type SiteConfig struct {
	Name              string  `json:"name"`
	RequestsPerMinute float64 `json:"requests_per_minute"`
	MaxConcurrent     int     `json:"max_concurrent"`

	// MaxRetries is a pointer so "omitted" (use the polite default) can be
	// told apart from an explicit 0 (never retry).
	MaxRetries *int   `json:"max_retries,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`

	// Reservoir caps total admissions until replenished; 0 means unlimited.
	Reservoir                int    `json:"reservoir,omitempty"`
	ReservoirRefreshInterval string `json:"reservoir_refresh_interval,omitempty"`
	ReservoirRefreshAmount   int    `json:"reservoir_refresh_amount,omitempty"`

	// Schedule triggers periodic seed sweeps: a 5-field cron expression, a
	// cron descriptor ("@every 15m"), or a plain Go duration ("15m").
	// Empty means manual submission only.
	Schedule string   `json:"schedule,omitempty"`
	Seeds    []string `json:"seeds,omitempty"`
}

// Validate checks structural config consistency. Schedule specs are validated
// separately by the app's validator hook (they need the cron parser).
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Sites))
	for i, site := range c.Sites {
		name := strings.TrimSpace(site.Name)
		if name == "" {
			return fmt.Errorf("sites[%d]: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("sites[%d]: duplicate site name %q", i, name)
		}
		seen[name] = struct{}{}

		if site.RequestsPerMinute <= 0 {
			return fmt.Errorf("site %q: requests_per_minute must be > 0", name)
		}
		if site.MaxConcurrent <= 0 {
			return fmt.Errorf("site %q: max_concurrent must be > 0", name)
		}
		if site.MaxRetries != nil && *site.MaxRetries < 0 {
			return fmt.Errorf("site %q: max_retries must be >= 0", name)
		}
		if _, err := ParseDurationField(fmt.Sprintf("site %q: retry_delay", name), site.RetryDelay); err != nil {
			return err
		}
		refresh, err := ParseDurationField(fmt.Sprintf("site %q: reservoir_refresh_interval", name), site.ReservoirRefreshInterval)
		if err != nil {
			return err
		}
		if site.Reservoir < 0 {
			return fmt.Errorf("site %q: reservoir must be >= 0", name)
		}
		if site.Reservoir == 0 && (refresh > 0 || site.ReservoirRefreshAmount != 0) {
			return fmt.Errorf("site %q: reservoir refresh settings require a reservoir", name)
		}
		if (refresh > 0) != (site.ReservoirRefreshAmount > 0) {
			return fmt.Errorf("site %q: reservoir_refresh_interval and reservoir_refresh_amount must be set together", name)
		}
		if site.ReservoirRefreshAmount < 0 {
			return fmt.Errorf("site %q: reservoir_refresh_amount must be >= 0", name)
		}
		for j, seed := range site.Seeds {
			if strings.TrimSpace(seed) == "" {
				return fmt.Errorf("site %q: seeds[%d] is empty", name, j)
			}
		}
	}

	if _, err := ParseDurationField("fetch.timeout", c.Fetch.Timeout); err != nil {
		return err
	}
	if c.Fetch.GlobalRatePerSec < 0 {
		return fmt.Errorf("fetch.global_rate_per_sec must be >= 0")
	}
	return nil
}

// Site returns the named site config, if present.
func (c *Config) Site(name string) (SiteConfig, bool) {
	for _, s := range c.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return SiteConfig{}, false
}
