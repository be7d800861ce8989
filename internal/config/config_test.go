package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleYAML = `
logging:
  level: INFO
  console: true
fetch:
  user_agent: "test-agent/1.0"
  timeout: 10s
  global_rate_per_sec: 2.5
metrics:
  enabled: true
  listen: "127.0.0.1:9090"
sites:
  - name: example
    requests_per_minute: 30
    max_concurrent: 2
    max_retries: 1
    retry_delay: 2s
    reservoir: 100
    reservoir_refresh_interval: 1m
    reservoir_refresh_amount: 50
    schedule: "15m"
    seeds:
      - https://example.test/index
  - name: other
    requests_per_minute: 60
    max_concurrent: 1
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "sites.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "INFO" || !cfg.Logging.Console {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Fetch.GlobalRatePerSec != 2.5 {
		t.Fatalf("global_rate_per_sec = %g, want 2.5", cfg.Fetch.GlobalRatePerSec)
	}
	if len(cfg.Sites) != 2 {
		t.Fatalf("sites = %d, want 2", len(cfg.Sites))
	}

	site, ok := cfg.Site("example")
	if !ok {
		t.Fatal("site example not found")
	}
	if site.RequestsPerMinute != 30 || site.MaxConcurrent != 2 {
		t.Fatalf("unexpected site config: %+v", site)
	}
	if site.MaxRetries == nil || *site.MaxRetries != 1 {
		t.Fatalf("max_retries = %v, want 1", site.MaxRetries)
	}
	if site.Reservoir != 100 || site.ReservoirRefreshAmount != 50 {
		t.Fatalf("unexpected reservoir settings: %+v", site)
	}

	other, _ := cfg.Site("other")
	if other.MaxRetries != nil {
		t.Fatal("omitted max_retries should stay nil")
	}
	if m.Get() == nil {
		t.Fatal("Get after Load must return the committed config")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "sites.yaml", `
sites:
  - name: example
    requests_per_minute: 30
    max_concurrent: 2
    requests_per_second: 1
`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "empty site name",
			cfg:  Config{Sites: []SiteConfig{{RequestsPerMinute: 1, MaxConcurrent: 1}}},
			want: "name is required",
		},
		{
			name: "duplicate site name",
			cfg: Config{Sites: []SiteConfig{
				{Name: "a", RequestsPerMinute: 1, MaxConcurrent: 1},
				{Name: "a", RequestsPerMinute: 1, MaxConcurrent: 1},
			}},
			want: "duplicate site name",
		},
		{
			name: "zero rpm",
			cfg:  Config{Sites: []SiteConfig{{Name: "a", MaxConcurrent: 1}}},
			want: "requests_per_minute",
		},
		{
			name: "zero concurrency",
			cfg:  Config{Sites: []SiteConfig{{Name: "a", RequestsPerMinute: 1}}},
			want: "max_concurrent",
		},
		{
			name: "bad retry delay",
			cfg:  Config{Sites: []SiteConfig{{Name: "a", RequestsPerMinute: 1, MaxConcurrent: 1, RetryDelay: "soon"}}},
			want: "invalid duration",
		},
		{
			name: "refresh without reservoir",
			cfg:  Config{Sites: []SiteConfig{{Name: "a", RequestsPerMinute: 1, MaxConcurrent: 1, ReservoirRefreshInterval: "1m", ReservoirRefreshAmount: 5}}},
			want: "reservoir",
		},
		{
			name: "refresh interval without amount",
			cfg:  Config{Sites: []SiteConfig{{Name: "a", RequestsPerMinute: 1, MaxConcurrent: 1, Reservoir: 10, ReservoirRefreshInterval: "1m"}}},
			want: "set together",
		},
		{
			name: "empty seed",
			cfg:  Config{Sites: []SiteConfig{{Name: "a", RequestsPerMinute: 1, MaxConcurrent: 1, Seeds: []string{" "}}}},
			want: "seeds[0]",
		},
		{
			name: "negative global rate",
			cfg:  Config{Fetch: FetchConfig{GlobalRatePerSec: -1}},
			want: "global_rate_per_sec",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 1m "); err != nil || d.Minutes() != 1 {
		t.Fatalf("ParseDurationField = %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty duration should be 0, got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration should be rejected")
	}
	if _, err := ParseDurationField("x", "nope"); err == nil {
		t.Fatal("garbage duration should be rejected")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Logging: LoggingConfig{Level: "INFO"},
		Sites: []SiteConfig{
			{Name: "a", RequestsPerMinute: 30, MaxConcurrent: 1},
			{Name: "b", RequestsPerMinute: 30, MaxConcurrent: 1},
		},
	}
	newCfg := &Config{
		Logging: LoggingConfig{Level: "DEBUG"},
		Sites: []SiteConfig{
			{Name: "a", RequestsPerMinute: 60, MaxConcurrent: 1},
			{Name: "c", RequestsPerMinute: 30, MaxConcurrent: 1},
		},
	}

	sections, _, sites := SummarizeConfigChange(oldCfg, newCfg)
	if want := []string{"logging", "sites"}; len(sections) != len(want) || sections[0] != want[0] || sections[1] != want[1] {
		t.Fatalf("sections = %v, want %v", sections, want)
	}
	if want := []string{"a", "b", "c"}; len(sites) != 3 || sites[0] != "a" || sites[1] != "b" || sites[2] != "c" {
		t.Fatalf("changed sites = %v, want %v", sites, want)
	}

	sections, _, sites = SummarizeConfigChange(newCfg, newCfg)
	if len(sections) != 0 || len(sites) != 0 {
		t.Fatalf("identical configs should produce no changes, got %v %v", sections, sites)
	}
}
