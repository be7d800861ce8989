package governor

// ReservoirUnlimited is reported by Stats when no reservoir is configured.
const ReservoirUnlimited = -1

// Stats is a point-in-time snapshot for observability consumers. Values may
// change between calls; there is no snapshot isolation across calls.
type Stats struct {
	Site     string `json:"site"`
	Running  int    `json:"running"`
	Queued   int    `json:"queued"`
	Done     uint64 `json:"done"`
	Capacity int    `json:"capacity"`

	// Reservoir is the remaining token budget, or ReservoirUnlimited when the
	// reservoir constraint is disabled.
	Reservoir int `json:"reservoir"`
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Site:      s.cfg.Name,
		Running:   s.running,
		Queued:    len(s.queue),
		Done:      s.done,
		Capacity:  s.cfg.MaxConcurrent,
		Reservoir: ReservoirUnlimited,
	}
	if s.cfg.Reservoir > 0 {
		st.Reservoir = s.reservoir
	}
	return st
}

// IsAtCapacity reports whether a newly scheduled job would have to queue:
// the concurrency limit is saturated or the reservoir is exhausted. MinTime
// spacing is deliberately not considered; it delays starts rather than
// capping them.
func (s *Scheduler) IsAtCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running >= s.cfg.MaxConcurrent {
		return true
	}
	if s.cfg.Reservoir > 0 && s.reservoir <= 0 {
		return true
	}
	return false
}
