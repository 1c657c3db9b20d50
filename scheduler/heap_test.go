package scheduler

import (
	"testing"
	"time"
)

func TestHeapDrainsInDueOrder(t *testing.T) {
	h := New()
	base := time.Now()
	h.Push(base.Add(30*time.Millisecond), "c", nil)
	h.Push(base.Add(10*time.Millisecond), "a", nil)
	h.Push(base.Add(20*time.Millisecond), "b", nil)

	due := h.DrainDue(base.Add(25 * time.Millisecond))
	if len(due) != 2 {
		t.Fatalf("DrainDue returned %d events, want 2", len(due))
	}
	if due[0].Kind != "a" || due[1].Kind != "b" {
		t.Fatalf("DrainDue order = [%s %s], want [a b]", due[0].Kind, due[1].Kind)
	}
	if h.Len() != 1 {
		t.Fatalf("Heap.Len() after drain = %d, want 1", h.Len())
	}
}

func TestHeapFIFOTieBreak(t *testing.T) {
	h := New()
	due := time.Now()
	h.Push(due, "first", nil)
	h.Push(due, "second", nil)
	h.Push(due, "third", nil)

	got := h.DrainDue(due)
	want := []string{"first", "second", "third"}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("event %d = %s, want %s", i, got[i].Kind, k)
		}
	}
}

func TestPeekDueFalseWhenEmpty(t *testing.T) {
	h := New()
	if h.PeekDue(time.Now()) {
		t.Errorf("PeekDue on empty heap = true, want false")
	}
}

func TestPeekKeyReturnsEarliest(t *testing.T) {
	h := New()
	base := time.Now()
	h.Push(base.Add(50*time.Millisecond), "later", nil)
	h.Push(base.Add(5*time.Millisecond), "sooner", nil)

	key, ok := h.PeekKey()
	if !ok {
		t.Fatalf("PeekKey ok = false, want true")
	}
	if !key.Equal(base.Add(5 * time.Millisecond)) {
		t.Errorf("PeekKey = %v, want %v", key, base.Add(5*time.Millisecond))
	}
}

func TestClearEmptiesHeap(t *testing.T) {
	h := New()
	h.Push(time.Now(), "x", nil)
	h.Clear()
	if h.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", h.Len())
	}
}
