package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testConfig = `
logging:
  level: ERROR
  console: false
fetch:
  timeout: 5s
sites:
  - name: example
    requests_per_minute: 600
    max_concurrent: 2
  - name: throttled
    requests_per_minute: 30
    max_concurrent: 1
    reservoir: 10
    reservoir_refresh_interval: 1m
    reservoir_refresh_amount: 5
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAppStartBuildsGovernors(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = a.Stop(sctx)
	}()

	g, ok := a.Governor("example")
	if !ok {
		t.Fatal("governor for example not built")
	}
	h := g.Schedule(func(ctx context.Context) (any, error) { return "done", nil })
	wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer wcancel()
	if res, err := h.Wait(wctx); err != nil || res != "done" {
		t.Fatalf("Wait = %v, %v", res, err)
	}

	if _, ok := a.Governor("missing"); ok {
		t.Fatal("unexpected governor for unconfigured site")
	}

	stats := a.Stats()
	if len(stats) != 2 {
		t.Fatalf("stats for %d sites, want 2", len(stats))
	}
	if stats[0].Site != "example" || stats[1].Site != "throttled" {
		t.Fatalf("stats not sorted by site: %+v", stats)
	}
	if stats[1].Reservoir != 10 {
		t.Fatalf("throttled reservoir = %d, want 10", stats[1].Reservoir)
	}
}

func TestValidateRuntimeRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	cfg := a.cfgm.Get()

	cp := *cfg
	cp.Sites = append(cp.Sites[:0:0], cp.Sites...)
	cp.Sites[0].Schedule = "every now and then"
	cp.Sites[0].Seeds = []string{"https://example.test/"}
	if err := validateRuntime(&cp); err == nil {
		t.Fatal("expected error for unparseable schedule")
	}

	cp.Sites[0].Schedule = "15m"
	cp.Sites[0].Seeds = nil
	if err := validateRuntime(&cp); err == nil {
		t.Fatal("expected error for schedule without seeds")
	}

	cp.Sites[0].Seeds = []string{"https://example.test/"}
	if err := validateRuntime(&cp); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestMapGovernorConfigDefaults(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	cfg := a.cfgm.Get()

	site, _ := cfg.Site("example")
	gcfg, err := mapGovernorConfig(site)
	if err != nil {
		t.Fatalf("mapGovernorConfig: %v", err)
	}
	if gcfg.MinTime != 100*time.Millisecond {
		t.Fatalf("MinTime = %v, want 100ms for 600 rpm", gcfg.MinTime)
	}
	if gcfg.MaxRetries == 0 {
		t.Fatal("omitted max_retries should fall back to the polite default")
	}
	if gcfg.RetryDelay <= 0 {
		t.Fatal("omitted retry_delay should fall back to the polite default")
	}
}
