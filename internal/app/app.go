// Package app wires the process: config manager, logging, event bus, fetch
// client, one governor per configured site, the sweep service, and the
// optional metrics listener. It owns config hot reload.
package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sitepacer/internal/config"
	"sitepacer/internal/eventbus"
	"sitepacer/internal/fetch"
	"sitepacer/internal/governor"
	"sitepacer/internal/metrics"
	"sitepacer/internal/sweep"
	logx "sitepacer/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	client  *fetch.Client
	sweeper *sweep.Service

	collector *metrics.Collector
	msrv      *metrics.Server

	mu   sync.Mutex
	govs map[string]*governor.Scheduler
	// siteCfg remembers the applied config per site so hot reload only
	// rebuilds governors whose settings actually changed.
	siteCfg map[string]config.SiteConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	fetchCfg, err := mapFetchConfig(cfg)
	if err != nil {
		return nil, err
	}
	client := fetch.New(fetchCfg, log.With(logx.String("comp", "fetch")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		client:  client,
		govs:    map[string]*governor.Scheduler{},
		siteCfg: map[string]config.SiteConfig{},
	}
	a.sweeper = sweep.New(client, bus, log.With(logx.String("comp", "sweep")))
	a.collector = metrics.NewCollector(bus, a.Stats)
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	cfg := a.cfgm.Get()
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return validateRuntime(c)
	})

	if err := a.applySites(cfg); err != nil {
		return err
	}
	if err := a.sweeper.Start(a.sweepTargets(cfg)); err != nil {
		return err
	}

	a.collector.Start()
	if cfg.Metrics.Enabled {
		a.msrv = metrics.NewServer(cfg.Metrics.Listen, a.log.With(logx.String("comp", "metrics")))
		a.msrv.Start()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.log.Info("started",
		logx.Int("sites", len(cfg.Sites)),
		logx.Bool("metrics", cfg.Metrics.Enabled),
	)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sweeper.Stop()
	a.wg.Wait()

	a.mu.Lock()
	govs := a.govs
	a.govs = map[string]*governor.Scheduler{}
	a.siteCfg = map[string]config.SiteConfig{}
	a.mu.Unlock()
	for _, g := range govs {
		g.Close()
	}

	a.collector.Stop()
	if a.msrv != nil {
		a.msrv.Stop(ctx)
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

// Governor returns the scheduler for the named site, if configured.
func (a *App) Governor(site string) (*governor.Scheduler, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.govs[site]
	return g, ok
}

// Stats snapshots all governors, sorted by site name.
func (a *App) Stats() []governor.Stats {
	a.mu.Lock()
	out := make([]governor.Stats, 0, len(a.govs))
	for _, g := range a.govs {
		out = append(out, g.Stats())
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs, siteChanged := config.SummarizeConfigChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config change summary", fields...)
			lastApplied = newCfg

			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})

			for _, s := range sections {
				if s == "fetch" || s == "metrics" {
					a.log.Warn("fetch/metrics config changed; restart required for changes to take effect")
					break
				}
			}

			if len(siteChanged) > 0 {
				if err := a.applySites(newCfg); err != nil {
					a.log.Warn("site reconfiguration failed; keeping previous governors", logx.Any("err", err))
					continue
				}
				if err := a.sweeper.Apply(a.sweepTargets(newCfg)); err != nil {
					a.log.Warn("sweep reconfiguration failed", logx.Any("err", err))
				}
			}
		}
	}
}

// applySites reconciles the governor set with cfg. Governors whose settings
// are unchanged keep their queues; changed or removed sites are closed, which
// settles their pending jobs.
func (a *App) applySites(cfg *config.Config) error {
	wanted := map[string]config.SiteConfig{}
	for _, s := range cfg.Sites {
		wanted[s.Name] = s
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var stale []*governor.Scheduler
	for name, g := range a.govs {
		nc, keep := wanted[name]
		if keep && siteConfigEqual(a.siteCfg[name], nc) {
			delete(wanted, name)
			continue
		}
		stale = append(stale, g)
		delete(a.govs, name)
		delete(a.siteCfg, name)
		if !keep {
			a.log.Info("site removed", logx.String("site", name))
		}
	}

	for name, sc := range wanted {
		gcfg, err := mapGovernorConfig(sc)
		if err != nil {
			return err
		}
		g, err := governor.New(gcfg,
			governor.WithLogger(a.log.With(logx.String("site", name))),
			governor.WithBus(a.bus),
		)
		if err != nil {
			return err
		}
		a.govs[name] = g
		a.siteCfg[name] = sc
		a.log.Info("site governor ready",
			logx.String("site", name),
			logx.Float64("rpm", sc.RequestsPerMinute),
			logx.Int("max_concurrent", sc.MaxConcurrent),
		)
	}

	// Closing settles pending handles and stops one goroutine per governor;
	// cheap enough to do under the lock.
	for _, g := range stale {
		g.Close()
	}
	return nil
}

func (a *App) sweepTargets(cfg *config.Config) []sweep.Target {
	a.mu.Lock()
	defer a.mu.Unlock()
	targets := make([]sweep.Target, 0, len(cfg.Sites))
	for _, s := range cfg.Sites {
		g, ok := a.govs[s.Name]
		if !ok || s.Schedule == "" || len(s.Seeds) == 0 {
			continue
		}
		targets = append(targets, sweep.Target{
			Site:  s.Name,
			Spec:  s.Schedule,
			Seeds: s.Seeds,
			Gov:   g,
		})
	}
	return targets
}

func siteConfigEqual(a, b config.SiteConfig) bool {
	if (a.MaxRetries == nil) != (b.MaxRetries == nil) {
		return false
	}
	if a.MaxRetries != nil && *a.MaxRetries != *b.MaxRetries {
		return false
	}
	if len(a.Seeds) != len(b.Seeds) {
		return false
	}
	for i := range a.Seeds {
		if a.Seeds[i] != b.Seeds[i] {
			return false
		}
	}
	return a.Name == b.Name &&
		a.RequestsPerMinute == b.RequestsPerMinute &&
		a.MaxConcurrent == b.MaxConcurrent &&
		a.RetryDelay == b.RetryDelay &&
		a.Reservoir == b.Reservoir &&
		a.ReservoirRefreshInterval == b.ReservoirRefreshInterval &&
		a.ReservoirRefreshAmount == b.ReservoirRefreshAmount &&
		a.Schedule == b.Schedule
}

// validateRuntime runs checks that need more context than Config.Validate:
// schedule specs need the cron parser, and governor settings are checked by
// building the governor config.
func validateRuntime(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, s := range cfg.Sites {
		if s.Schedule != "" {
			if err := sweep.ValidateSpec(s.Schedule); err != nil {
				return fmt.Errorf("site %q: %w", s.Name, err)
			}
			if len(s.Seeds) == 0 {
				return fmt.Errorf("site %q: schedule requires seeds", s.Name)
			}
		}
		if _, err := mapGovernorConfig(s); err != nil {
			return err
		}
	}
	if _, err := mapFetchConfig(cfg); err != nil {
		return err
	}
	return nil
}

func mapGovernorConfig(sc config.SiteConfig) (governor.Config, error) {
	retries := governor.DefaultSiteRetries
	if sc.MaxRetries != nil {
		retries = *sc.MaxRetries
	}
	retryDelay, err := config.ParseDurationOrDefault(
		fmt.Sprintf("site %q: retry_delay", sc.Name), sc.RetryDelay, governor.DefaultSiteRetryDelay)
	if err != nil {
		return governor.Config{}, err
	}
	refresh, err := config.ParseDurationField(
		fmt.Sprintf("site %q: reservoir_refresh_interval", sc.Name), sc.ReservoirRefreshInterval)
	if err != nil {
		return governor.Config{}, err
	}
	return governor.Config{
		Name:                     sc.Name,
		MaxConcurrent:            sc.MaxConcurrent,
		MinTime:                  time.Duration(float64(time.Minute) / sc.RequestsPerMinute),
		MaxRetries:               retries,
		RetryDelay:               retryDelay,
		Reservoir:                sc.Reservoir,
		ReservoirRefreshInterval: refresh,
		ReservoirRefreshAmount:   sc.ReservoirRefreshAmount,
	}, nil
}

func mapFetchConfig(cfg *config.Config) (fetch.Config, error) {
	timeout, err := config.ParseDurationField("fetch.timeout", cfg.Fetch.Timeout)
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		UserAgent:        cfg.Fetch.UserAgent,
		Timeout:          timeout,
		GlobalRatePerSec: cfg.Fetch.GlobalRatePerSec,
	}, nil
}
