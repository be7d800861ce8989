package governor

import (
	"fmt"
	"sync"
	"time"

	"sitepacer/internal/eventbus"
	logx "sitepacer/pkg/logx"
)

// Config is supplied at construction and never mutated afterwards.
type Config struct {
	// Name labels this scheduler in logs and events. Purely cosmetic.
	Name string

	// MaxConcurrent bounds simultaneously running jobs. Required, > 0.
	MaxConcurrent int

	// MinTime is the minimum spacing between two job starts. The very first
	// admission is exempt.
	MinTime time.Duration

	// MaxRetries is the number of retry attempts after the first failure;
	// a task is invoked at most 1+MaxRetries times.
	MaxRetries int

	// RetryDelay is the base delay for the backoff policy. 0 means 1s.
	RetryDelay time.Duration

	// Reservoir is the initial and maximum token budget; each admission
	// consumes one token. <= 0 disables the reservoir (unlimited budget).
	Reservoir int

	// ReservoirRefreshInterval and ReservoirRefreshAmount restore tokens on a
	// timer, capped at Reservoir. Both must be set together, and only when
	// Reservoir is enabled.
	ReservoirRefreshInterval time.Duration
	ReservoirRefreshAmount   int
}

func (c Config) validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: max_concurrent must be > 0 (got %d)", ErrInvalidConfig, c.MaxConcurrent)
	}
	if c.MinTime < 0 {
		return fmt.Errorf("%w: min_time must be >= 0", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry_delay must be >= 0", ErrInvalidConfig)
	}
	if c.Reservoir <= 0 && (c.ReservoirRefreshInterval != 0 || c.ReservoirRefreshAmount != 0) {
		return fmt.Errorf("%w: reservoir refresh settings require a reservoir", ErrInvalidConfig)
	}
	if (c.ReservoirRefreshInterval > 0) != (c.ReservoirRefreshAmount > 0) {
		return fmt.Errorf("%w: reservoir_refresh_interval and reservoir_refresh_amount must be set together", ErrInvalidConfig)
	}
	if c.ReservoirRefreshInterval < 0 || c.ReservoirRefreshAmount < 0 {
		return fmt.Errorf("%w: reservoir refresh settings must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Scheduler admits queued jobs as concurrency, spacing and budget allow.
// All mutable state is guarded by mu; one pump goroutine drives admission.
type Scheduler struct {
	cfg     Config
	backoff Backoff
	log     logx.Logger
	bus     eventbus.Bus

	mu        sync.Mutex
	queue     []*job // FIFO, awaiting admission
	events    eventHeap
	running   int
	done      uint64
	reservoir int // meaningful only when cfg.Reservoir > 0
	lastStart time.Time
	closed    bool
	idSeq     uint64
	evSeq     uint64

	wake     chan struct{}
	stopCh   chan struct{}
	pumpDone chan struct{}
}

// Option configures optional collaborators.
type Option func(*Scheduler)

// WithLogger injects the logging collaborator. The zero logx.Logger is a
// no-op, so schedulers stay silent (and test-friendly) by default.
func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithBus injects an event bus; the scheduler publishes JobEvent payloads for
// lifecycle transitions when set.
func WithBus(bus eventbus.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// New validates cfg and starts the scheduler's pump loop.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:      cfg,
		backoff:  Backoff{Base: cfg.RetryDelay},
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if cfg.Reservoir > 0 {
		s.reservoir = cfg.Reservoir
		if cfg.ReservoirRefreshInterval > 0 {
			s.pushEventLocked(&timedEvent{at: time.Now().Add(cfg.ReservoirRefreshInterval), kind: eventRefresh})
		}
	}
	go s.pump()
	if !s.log.IsZero() {
		s.log.Debug("governor started",
			logx.String("site", cfg.Name),
			logx.Int("max_concurrent", cfg.MaxConcurrent),
			logx.Duration("min_time", cfg.MinTime),
			logx.Int("reservoir", cfg.Reservoir),
		)
	}
	return s, nil
}

// Schedule enqueues task and returns its pending handle. It never fails
// synchronously: a nil task or a closed scheduler settles the handle with the
// corresponding error.
func (s *Scheduler) Schedule(task Task) *Handle {
	h := newHandle()
	if task == nil {
		h.settle(nil, ErrNilTask)
		return h
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.settle(nil, ErrClosed)
		return h
	}
	s.idSeq++
	j := &job{
		id:         s.idSeq,
		task:       task,
		handle:     h,
		state:      StateQueued,
		enqueuedAt: time.Now(),
	}
	s.queue = append(s.queue, j)
	queued := len(s.queue)
	s.mu.Unlock()

	if !s.log.IsZero() {
		s.log.Debug("job enqueued", logx.String("site", s.cfg.Name), logx.Uint64("id", j.id), logx.Int("queued", queued))
	}
	s.kick()
	return h
}

// RetryDelayForStatus exposes the backoff policy so callers can pre-compute
// expected waits for a given HTTP status and 0-based attempt.
func (s *Scheduler) RetryDelayForStatus(status, attempt int) time.Duration {
	return s.backoff.Delay(attempt, status)
}

// Close stops admission. Jobs still queued (or waiting out a retry delay)
// settle with ErrClosed; running tasks finish and settle normally.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	orphans := s.queue
	s.queue = nil
	for _, ev := range s.events {
		if ev.kind == eventRetry && ev.job != nil {
			orphans = append(orphans, ev.job)
		}
	}
	s.events = nil
	s.done += uint64(len(orphans))
	s.mu.Unlock()

	close(s.stopCh)
	<-s.pumpDone

	for _, j := range orphans {
		j.state = StateFailed
		j.handle.settle(nil, ErrClosed)
	}
	if !s.log.IsZero() {
		s.log.Info("governor closed", logx.String("site", s.cfg.Name), logx.Int("orphaned", len(orphans)))
	}
}

// kick nudges the pump loop; safe from any goroutine, never blocks.
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump is the drive loop: it fires due timed events, admits eligible queued
// jobs in FIFO order, then sleeps until the next trigger (a wake signal or the
// earliest timed event).
func (s *Scheduler) pump() {
	defer close(s.pumpDone)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		now := time.Now()

		s.mu.Lock()
		s.fireDueLocked(now)
		admitted := s.admitLocked(now)
		next, hasNext := s.nextWakeLocked(now)
		s.mu.Unlock()

		for _, j := range admitted {
			go s.run(j)
		}

		var timerC <-chan time.Time
		if hasNext {
			d := next.Sub(now)
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
			timerC = timer.C
		}

		select {
		case <-s.stopCh:
			return
		case <-s.wake:
		case <-timerC:
			continue // timer drained; skip the Stop below
		}

		if hasNext && !timer.Stop() {
			<-timer.C
		}
	}
}

func (s *Scheduler) fireDueLocked(now time.Time) {
	for {
		ev := s.popDueLocked(now)
		if ev == nil {
			return
		}
		switch ev.kind {
		case eventRetry:
			j := ev.job
			j.state = StateQueued
			s.queue = append(s.queue, j)
		case eventRefresh:
			before := s.reservoir
			s.reservoir += s.cfg.ReservoirRefreshAmount
			if s.reservoir > s.cfg.Reservoir {
				s.reservoir = s.cfg.Reservoir
			}
			// Schedule the next refresh from the previous fire time, not from
			// now, so the cadence does not drift under load.
			s.pushEventLocked(&timedEvent{at: ev.at.Add(s.cfg.ReservoirRefreshInterval), kind: eventRefresh})
			if s.bus != nil {
				s.bus.Publish(eventbus.Event{Type: "reservoir.refreshed", Data: JobEvent{Site: s.cfg.Name}})
			}
			if !s.log.IsZero() {
				s.log.Debug("reservoir refreshed", logx.String("site", s.cfg.Name), logx.Int("before", before), logx.Int("level", s.reservoir))
			}
		}
	}
}

func (s *Scheduler) canAdmitLocked(now time.Time) bool {
	if s.running >= s.cfg.MaxConcurrent {
		return false
	}
	if s.cfg.Reservoir > 0 && s.reservoir <= 0 {
		return false
	}
	if !s.lastStart.IsZero() && now.Sub(s.lastStart) < s.cfg.MinTime {
		return false
	}
	return true
}

// admitLocked moves eligible jobs from the queue into the running state and
// returns them; the caller launches them outside the lock.
func (s *Scheduler) admitLocked(now time.Time) []*job {
	var admitted []*job
	for len(s.queue) > 0 && s.canAdmitLocked(now) {
		j := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]

		j.state = StateRunning
		j.attempt++
		s.running++
		if s.cfg.Reservoir > 0 {
			s.reservoir--
		}
		s.lastStart = now
		admitted = append(admitted, j)
	}
	return admitted
}

// nextWakeLocked reports the earliest instant at which admission could change
// without an external trigger: the head of the event heap, or the moment the
// MinTime spacing expires for a queue blocked only on spacing.
func (s *Scheduler) nextWakeLocked(now time.Time) (time.Time, bool) {
	var next time.Time
	if len(s.events) > 0 {
		next = s.events[0].at
	}
	if len(s.queue) > 0 &&
		s.running < s.cfg.MaxConcurrent &&
		(s.cfg.Reservoir <= 0 || s.reservoir > 0) &&
		!s.lastStart.IsZero() {
		spacing := s.lastStart.Add(s.cfg.MinTime)
		if spacing.After(now) && (next.IsZero() || spacing.Before(next)) {
			next = spacing
		}
	}
	return next, !next.IsZero()
}

func (s *Scheduler) run(j *job) {
	start := time.Now()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "job.started", Data: JobEvent{Site: s.cfg.Name, ID: j.id, Attempt: j.attempt, State: StateRunning.String()}})
	}
	if !s.log.IsZero() {
		s.log.Debug("job started", logx.String("site", s.cfg.Name), logx.Uint64("id", j.id), logx.Int("attempt", j.attempt))
	}

	result, err := invoke(j.task)
	s.onDone(j, result, err, time.Since(start))
}

// onDone applies a completed attempt: either schedules a retry or settles the
// job. The concurrency slot is released immediately, before any retry delay.
func (s *Scheduler) onDone(j *job, result any, err error, dur time.Duration) {
	s.mu.Lock()
	s.running--

	if err != nil && j.attempt < 1+s.cfg.MaxRetries && !s.closed {
		j.state = StateRetrying
		j.lastErr = err
		status, _ := StatusFromError(err)
		delay := s.backoff.Delay(j.attempt-1, status)
		s.pushEventLocked(&timedEvent{at: time.Now().Add(delay), kind: eventRetry, job: j})
		attempt := j.attempt
		s.mu.Unlock()

		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "job.retrying", Data: JobEvent{Site: s.cfg.Name, ID: j.id, Attempt: attempt, State: StateRetrying.String(), Duration: dur, Error: err.Error()}})
		}
		if !s.log.IsZero() {
			s.log.Debug("job retry scheduled",
				logx.String("site", s.cfg.Name),
				logx.Uint64("id", j.id),
				logx.Int("attempt", attempt),
				logx.Duration("delay", delay),
				logx.Any("err", err),
			)
		}
		s.kick()
		return
	}

	if err != nil {
		j.state = StateFailed
	} else {
		j.state = StateSucceeded
	}
	s.done++
	attempt := j.attempt
	s.mu.Unlock()

	// Settle with the final attempt's error (the last one observed), never an
	// earlier attempt's.
	j.handle.settle(result, err)

	if err != nil {
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "job.failed", Data: JobEvent{Site: s.cfg.Name, ID: j.id, Attempt: attempt, State: StateFailed.String(), Duration: dur, Error: err.Error()}})
		}
		if !s.log.IsZero() {
			s.log.Warn("job failed",
				logx.String("site", s.cfg.Name),
				logx.Uint64("id", j.id),
				logx.Int("attempts", attempt),
				logx.Duration("dur", dur),
				logx.Any("err", err),
			)
		}
	} else {
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "job.succeeded", Data: JobEvent{Site: s.cfg.Name, ID: j.id, Attempt: attempt, State: StateSucceeded.String(), Duration: dur}})
		}
		if !s.log.IsZero() {
			s.log.Debug("job succeeded",
				logx.String("site", s.cfg.Name),
				logx.Uint64("id", j.id),
				logx.Int("attempts", attempt),
				logx.Duration("dur", dur),
			)
		}
	}
	s.kick()
}
