package core

import (
	"context"
	"testing"
)

// taggedUnit is an identity-comparable unit for queue assertions.
type taggedUnit struct{ id int }

func (*taggedUnit) Execute(context.Context) bool { return false }

// TestUnitQueue_FIFO verifies insertion-order removal
// Given: Three units added in order
// When: The queue is polled
// Then: They come back in the same order, then nil
func TestUnitQueue_FIFO(t *testing.T) {
	q := newUnitQueue()
	a, b, c := &taggedUnit{1}, &taggedUnit{2}, &taggedUnit{3}

	q.add(a)
	q.add(b)
	q.add(c)

	if got := q.poll(); got != Unit(a) {
		t.Errorf("first poll = %v, want a", got)
	}
	if got := q.poll(); got != Unit(b) {
		t.Errorf("second poll = %v, want b", got)
	}
	if got := q.poll(); got != Unit(c) {
		t.Errorf("third poll = %v, want c", got)
	}
	if got := q.poll(); got != nil {
		t.Errorf("poll on empty = %v, want nil", got)
	}
}

// TestUnitQueue_Size verifies pending count tracking
func TestUnitQueue_Size(t *testing.T) {
	q := newUnitQueue()
	if n := q.size(); n != 0 {
		t.Errorf("size of empty queue = %d, want 0", n)
	}

	q.add(&taggedUnit{1})
	q.add(&taggedUnit{2})
	if n := q.size(); n != 2 {
		t.Errorf("size = %d, want 2", n)
	}

	q.poll()
	if n := q.size(); n != 1 {
		t.Errorf("size after poll = %d, want 1", n)
	}
}
