// Package scheduler implements the delayed-event half of a peer's
// single-threaded, cooperative tick loop: a binary min-heap of events
// keyed by absolute due time, so heartbeats, resends, and timeouts all
// share one ordered queue instead of each needing their own ad hoc
// ticker.
package scheduler

import "time"

// Event is a unit of delayed work due at a specific time.
type Event struct {
	DueAt time.Time
	Kind  string
	Data  interface{}

	seq int // insertion order, used to break DueAt ties FIFO
}

// Heap is a binary min-heap of Events ordered by DueAt, with FIFO
// tie-breaking for events scheduled at the exact same instant.
type Heap struct {
	items   []*Event
	counter int
}

// New returns an empty Heap.
func New() *Heap {
	return &Heap{}
}

// Len returns the number of pending events.
func (h *Heap) Len() int { return len(h.items) }

// Push enqueues an event due at dueAt.
func (h *Heap) Push(dueAt time.Time, kind string, data interface{}) {
	e := &Event{DueAt: dueAt, Kind: kind, Data: data, seq: h.counter}
	h.counter++
	h.items = append(h.items, e)
	h.up(len(h.items) - 1)
}

// PeekDue reports whether the earliest event is due at or before now.
func (h *Heap) PeekDue(now time.Time) bool {
	if len(h.items) == 0 {
		return false
	}
	return !h.items[0].DueAt.After(now)
}

// PeekKey returns the due time of the earliest event, for callers that
// want to size a poll timeout instead of busy-looping.
func (h *Heap) PeekKey() (time.Time, bool) {
	if len(h.items) == 0 {
		return time.Time{}, false
	}
	return h.items[0].DueAt, true
}

// Pop removes and returns the earliest event.
func (h *Heap) Pop() *Event {
	n := len(h.items)
	top := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.down(0)
	}
	return top
}

// DrainDue pops and returns every event due at or before now, in
// due-time (then insertion) order.
func (h *Heap) DrainDue(now time.Time) []*Event {
	var due []*Event
	for h.PeekDue(now) {
		due = append(due, h.Pop())
	}
	return due
}

// Clear empties the heap.
func (h *Heap) Clear() {
	h.items = nil
}

func (e *Event) less(o *Event) bool {
	if e.DueAt.Equal(o.DueAt) {
		return e.seq < o.seq
	}
	return e.DueAt.Before(o.DueAt)
}

func (h *Heap) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.items[i].less(h.items[parent]) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *Heap) down(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		right := 2*i + 2
		smallest := i
		if left < n && h.items[left].less(h.items[smallest]) {
			smallest = left
		}
		if right < n && h.items[right].less(h.items[smallest]) {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
