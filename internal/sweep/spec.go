package sweep

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// specParser accepts standard 5-field cron expressions plus descriptors
// ("@hourly", "@every 15m", ...).
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NormalizeSpec turns a user-facing schedule spec into a cron spec.
//
// Accepted forms:
//   - 5-field cron: "*/15 * * * *"
//   - cron descriptor: "@hourly", "@every 15m"
//   - plain Go duration: "15m" (shorthand for "@every 15m")
func NormalizeSpec(spec string) (string, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return "", fmt.Errorf("empty schedule spec")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return "", fmt.Errorf("schedule duration must be > 0, got %q", spec)
		}
		s = "@every " + d.String()
	}
	if _, err := specParser.Parse(s); err != nil {
		return "", fmt.Errorf("invalid schedule spec %q: %w", spec, err)
	}
	return s, nil
}

// ValidateSpec reports whether spec is acceptable to NormalizeSpec.
func ValidateSpec(spec string) error {
	_, err := NormalizeSpec(spec)
	return err
}
