// Package sweep drives periodic seed fetches. Each configured site with a
// schedule gets a cron entry; on fire the sweeper submits the site's seed URLs
// through the site's governor and reports the outcome on the event bus.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sitepacer/internal/eventbus"
	"sitepacer/internal/fetch"
	"sitepacer/internal/governor"
	logx "sitepacer/pkg/logx"
)

// Target binds one site's schedule and seeds to its governor.
type Target struct {
	Site  string
	Spec  string
	Seeds []string
	Gov   *governor.Scheduler
}

// Report is published on the bus (type "sweep.triggered") after each sweep.
type Report struct {
	Site      string        `json:"site"`
	Seeds     int           `json:"seeds"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   bool          `json:"skipped,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	bus    eventbus.Bus
	client *fetch.Client

	c       *cron.Cron
	targets []Target

	// inFlight guards against overlapping sweeps of the same site when a
	// schedule fires faster than the governor drains the seeds.
	inFlight map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(client *fetch.Client, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		log:      log,
		bus:      bus,
		client:   client,
		inFlight: map[string]bool{},
	}
}

// Start begins firing schedules for the given targets. Targets with an empty
// spec are ignored (manual submission only).
func (s *Service) Start(targets []Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.c = cron.New(cron.WithParser(specParser))
	s.targets = nil

	for _, t := range targets {
		if t.Spec == "" || len(t.Seeds) == 0 || t.Gov == nil {
			continue
		}
		spec, err := NormalizeSpec(t.Spec)
		if err != nil {
			s.stopLocked()
			return err
		}
		t := t
		if _, err := s.c.AddFunc(spec, func() { s.fire(t) }); err != nil {
			s.stopLocked()
			return err
		}
		s.targets = append(s.targets, t)
		if !s.log.IsZero() {
			s.log.Info("sweep scheduled",
				logx.String("site", t.Site),
				logx.String("spec", spec),
				logx.Int("seeds", len(t.Seeds)),
			)
		}
	}

	s.c.Start()
	return nil
}

// Apply replaces the target set, restarting the cron runner. Sweeps already
// in flight finish against their old governors.
func (s *Service) Apply(targets []Target) error {
	s.Stop()
	return s.Start(targets)
}

// Stop halts scheduling and waits for in-flight sweeps to hand their seeds to
// the governors. It does not wait for the governors to drain.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	if s.cancel != nil {
		s.cancel()
	}
}

// Trigger runs one sweep of the named site immediately, outside its schedule.
func (s *Service) Trigger(site string) bool {
	s.mu.Lock()
	var target *Target
	for i := range s.targets {
		if s.targets[i].Site == site {
			target = &s.targets[i]
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return false
	}
	s.fire(*target)
	return true
}

func (s *Service) fire(t Target) {
	s.mu.Lock()
	if s.inFlight[t.Site] {
		s.mu.Unlock()
		if !s.log.IsZero() {
			s.log.Warn("sweep still in flight; skipping", logx.String("site", t.Site))
		}
		s.publish(Report{Site: t.Site, Seeds: len(t.Seeds), Skipped: true})
		return
	}
	s.inFlight[t.Site] = true
	ctx := s.ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.inFlight[t.Site] = false
			s.mu.Unlock()
		}()
		s.sweep(ctx, t)
	}()
}

func (s *Service) sweep(ctx context.Context, t Target) {
	start := time.Now()
	handles := make([]*governor.Handle, 0, len(t.Seeds))
	for _, url := range t.Seeds {
		handles = append(handles, t.Gov.Schedule(s.client.Task(url)))
	}

	rep := Report{Site: t.Site, Seeds: len(t.Seeds)}
	for _, h := range handles {
		if _, err := h.Wait(ctx); err != nil {
			rep.Failed++
		} else {
			rep.Succeeded++
		}
	}
	rep.Elapsed = time.Since(start)

	if !s.log.IsZero() {
		s.log.Info("sweep finished",
			logx.String("site", t.Site),
			logx.Int("succeeded", rep.Succeeded),
			logx.Int("failed", rep.Failed),
			logx.Duration("elapsed", rep.Elapsed),
		)
	}
	s.publish(rep)
}

func (s *Service) publish(rep Report) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: "sweep.triggered", Data: rep})
}
