package metrics

import (
	"time"

	"sitepacer/internal/eventbus"
	"sitepacer/internal/governor"
	"sitepacer/internal/sweep"
)

const pollInterval = 5 * time.Second

// Collector feeds Prometheus from two sources: job lifecycle events on the
// bus, and periodic Stats snapshots for the gauges.
type Collector struct {
	bus   eventbus.Bus
	stats func() []governor.Stats

	stopCh chan struct{}
	done   chan struct{}
}

// NewCollector builds a collector. stats is polled for gauge values; it must
// be safe to call from another goroutine.
func NewCollector(bus eventbus.Bus, stats func() []governor.Stats) *Collector {
	return &Collector{bus: bus, stats: stats}
}

func (c *Collector) Start() {
	if c.stopCh != nil {
		return
	}
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})

	events, unsub := c.bus.Subscribe(256)
	go func() {
		defer close(c.done)
		defer unsub()

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		c.poll()
		for {
			select {
			case <-c.stopCh:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				c.observe(ev)
			case <-ticker.C:
				c.poll()
			}
		}
	}()
}

func (c *Collector) Stop() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.done
	c.stopCh = nil
}

func (c *Collector) observe(ev eventbus.Event) {
	switch ev.Type {
	case "job.started":
		if je, ok := ev.Data.(governor.JobEvent); ok {
			JobsStarted.WithLabelValues(je.Site).Inc()
		}
	case "job.retrying":
		if je, ok := ev.Data.(governor.JobEvent); ok {
			JobRetries.WithLabelValues(je.Site).Inc()
		}
	case "job.succeeded":
		if je, ok := ev.Data.(governor.JobEvent); ok {
			JobsSucceeded.WithLabelValues(je.Site).Inc()
			JobDuration.WithLabelValues(je.Site).Observe(je.Duration.Seconds())
		}
	case "job.failed":
		if je, ok := ev.Data.(governor.JobEvent); ok {
			JobsFailed.WithLabelValues(je.Site).Inc()
			if je.Duration > 0 {
				JobDuration.WithLabelValues(je.Site).Observe(je.Duration.Seconds())
			}
		}
	case "sweep.triggered":
		if rep, ok := ev.Data.(sweep.Report); ok {
			outcome := "ok"
			if rep.Skipped {
				outcome = "skipped"
			}
			SweepsTriggered.WithLabelValues(rep.Site, outcome).Inc()
		}
	}
}

func (c *Collector) poll() {
	if c.stats == nil {
		return
	}
	for _, st := range c.stats() {
		QueueDepth.WithLabelValues(st.Site).Set(float64(st.Queued))
		JobsRunning.WithLabelValues(st.Site).Set(float64(st.Running))
		ReservoirLevel.WithLabelValues(st.Site).Set(float64(st.Reservoir))
	}
}
