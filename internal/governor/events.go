package governor

import (
	"container/heap"
	"time"
)

// The scheduler keeps every timed trigger (retry re-entries, reservoir
// refreshes) in one min-heap keyed by fire time, so the pump loop has a single
// unambiguous "next wake-up" instead of scattered timer callbacks.

type eventKind int

const (
	eventRetry eventKind = iota
	eventRefresh
)

type timedEvent struct {
	at   time.Time
	seq  uint64 // tie-break so equal fire times pop in push order
	kind eventKind
	job  *job // set for eventRetry
}

type eventHeap []*timedEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*timedEvent)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

func (s *Scheduler) pushEventLocked(ev *timedEvent) {
	s.evSeq++
	ev.seq = s.evSeq
	heap.Push(&s.events, ev)
}

// popDueLocked removes and returns the earliest event if it is due at now.
func (s *Scheduler) popDueLocked(now time.Time) *timedEvent {
	if len(s.events) == 0 {
		return nil
	}
	if s.events[0].at.After(now) {
		return nil
	}
	return heap.Pop(&s.events).(*timedEvent)
}
