package core

import "github.com/eapache/queue"

// unitQueue is the conveyor's FIFO of pending units, insertion order equals
// execution order. It is deliberately unsynchronized: the conveyor mutates
// it only while holding its own mutex.
type unitQueue struct {
	ring *queue.Queue
}

func newUnitQueue() *unitQueue {
	return &unitQueue{ring: queue.New()}
}

func (q *unitQueue) add(u Unit) {
	q.ring.Add(u)
}

// poll removes and returns the oldest pending unit, or nil when empty.
func (q *unitQueue) poll() Unit {
	if q.ring.Length() == 0 {
		return nil
	}
	return q.ring.Remove().(Unit)
}

func (q *unitQueue) size() int {
	return q.ring.Length()
}
