package core

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Waiting is a pending timer entry binding a unit to a wake-up moment.
// The handle is the identity used for cancellation through Remove.
type Waiting struct {
	unit   Unit
	wakeAt int64 // epoch milliseconds
	index  int   // heap slot, -1 once fired or removed
}

// NewWaiting creates a timer entry that re-enqueues unit at the given
// moment.
func NewWaiting(u Unit, at time.Time) *Waiting {
	return &Waiting{unit: u, wakeAt: at.UnixMilli(), index: -1}
}

// Unit returns the unit the entry will re-enqueue.
func (w *Waiting) Unit() Unit { return w.unit }

// WakeAt returns the moment the entry fires.
func (w *Waiting) WakeAt() time.Time { return time.UnixMilli(w.wakeAt) }

// waitingHeap implements heap.Interface ordered by wake-up moment.
type waitingHeap []*Waiting

func (h waitingHeap) Len() int           { return len(h) }
func (h waitingHeap) Less(i, j int) bool { return h[i].wakeAt < h[j].wakeAt }
func (h waitingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waitingHeap) Push(x any) {
	w := x.(*Waiting)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waitingHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil // avoid memory leak
	w.index = -1
	*h = old[0 : n-1]
	return w
}

// TimeKeeper owns the deadline-ordered collection of waiting units of one
// conveyor. It fires due entries, reports the next wake moment and borrows
// an execution line from the conveyor to watch the clock when one can be
// spared.
//
// Lock order: the keeper calls into the conveyor (switchTimer, Push) while
// holding its heap mutex; the conveyor, while holding its own mutex, only
// ever touches the keeper's lock-free state (Invoke, Revoke, Release,
// NextWakeup). The reverse lock order is never taken.
type TimeKeeper struct {
	conveyor *Conveyor
	log      Logger

	mu   sync.Mutex // guards heap
	heap waitingHeap

	// next caches the earliest deadline (epoch ms, 0 = none) so the
	// conveyor can read it without the heap lock.
	next atomic.Int64

	// line is the borrowed hybrid line, written only under the conveyor
	// mutex and read lock-free. It is the single source of truth for who
	// owns the watch: the loop in Execute compares it against its own line
	// every iteration and steps down on a mismatch.
	line atomic.Pointer[Line]

	// kick and revoke are wake-up hints, never authoritative. A stale poke
	// consumed by the wrong borrower is harmless because ownership is
	// re-validated against line after every wake.
	kick   chan struct{} // heap changed while a line is watching
	revoke chan struct{} // the conveyor reclaimed the watching line
}

func newTimeKeeper(c *Conveyor, log Logger) *TimeKeeper {
	return &TimeKeeper{
		conveyor: c,
		log:      log,
		kick:     make(chan struct{}, 1),
		revoke:   make(chan struct{}, 1),
	}
}

// Push registers a waiting entry. When the entry becomes the new earliest
// deadline the keeper renegotiates the watch: it pokes its borrowed line,
// or asks the conveyor for one through switchTimer.
func (k *TimeKeeper) Push(w *Waiting) {
	k.mu.Lock()
	defer k.mu.Unlock()
	heap.Push(&k.heap, w)
	if w.index != 0 {
		return
	}
	k.next.Store(w.wakeAt)
	k.log.Debug("new earliest timer", F("wake", w.WakeAt()))
	if k.line.Load() != nil {
		poke(k.kick)
		return
	}
	if l := k.conveyor.switchTimer(w.wakeAt); l != nil {
		l.unpark(k)
	}
}

// Take cancels a not-yet-fired entry; reports whether it was still queued.
func (k *TimeKeeper) Take(w *Waiting) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if w.index < 0 {
		return false
	}
	heap.Remove(&k.heap, w.index)
	w.index = -1
	if len(k.heap) == 0 {
		k.next.Store(0)
		if k.line.Load() != nil {
			poke(k.kick)
		} else {
			k.conveyor.switchTimer(0)
		}
	} else if top := k.heap[0]; top.wakeAt != k.next.Load() {
		k.next.Store(top.wakeAt)
		if k.line.Load() != nil {
			poke(k.kick)
		}
	}
	return true
}

// Apply fires every entry due at now and returns the next wake moment
// (0 = none). Fired units re-enter the conveyor through Push, so the
// caller must not hold the conveyor mutex.
func (k *TimeKeeper) Apply(now int64) int64 {
	k.mu.Lock()
	var due []*Waiting
	for len(k.heap) > 0 && k.heap[0].wakeAt <= now {
		due = append(due, heap.Pop(&k.heap).(*Waiting))
	}
	var next int64
	if len(k.heap) > 0 {
		next = k.heap[0].wakeAt
	}
	k.next.Store(next)
	k.mu.Unlock()

	for _, w := range due {
		if err := k.conveyor.Push(w.unit); err != nil {
			k.log.Warn("due unit dropped", F("error", err))
		}
	}
	return next
}

// NextWakeup returns the authoritative next wake moment (0 = none).
func (k *TimeKeeper) NextWakeup() int64 { return k.next.Load() }

// QueueSize returns the number of waiting entries.
func (k *TimeKeeper) QueueSize() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.heap)
}

// Invoke attaches a borrowed line. Called under the conveyor mutex. The
// hint channels are left alone: a pending revoke poke may still be owed to
// a previous borrower that has not stepped down yet, and consuming it here
// would strand that line on the watch forever.
func (k *TimeKeeper) Invoke(l *Line) {
	k.line.Store(l)
}

// Revoke detaches the borrowed line so it can take a user unit and reports
// the next wake moment the conveyor must track itself. Called under the
// conveyor mutex; only the cached deadline is read here, the departing
// line reconciles any in-flight pass on its way out.
func (k *TimeKeeper) Revoke() int64 {
	if l := k.line.Swap(nil); l != nil {
		poke(k.revoke)
	}
	return k.next.Load()
}

// Release forgets the borrowed line after it returned on its own. Called
// under the conveyor mutex.
func (k *TimeKeeper) Release() {
	k.line.Store(nil)
}

// Execute is the watch loop run by a borrowed line. It waits out the
// earliest deadline, fires due entries and returns once the line is
// reclaimed or no timers remain. The keeper is handed to the line as a
// regular unit, so lending a line costs nothing special.
//
// Ownership is checked against the attached line on every iteration, so a
// line revoked mid-pass steps down as soon as it resurfaces even when its
// revoke poke was consumed elsewhere. Only the owning line ever blocks in
// the select below, so a wake hint cannot be stolen from it.
func (k *TimeKeeper) Execute(ctx context.Context) bool {
	self := lineFromContext(ctx)
	for {
		if k.line.Load() != self {
			// Revoked, or the watch was already re-lent; either way the
			// attached line is the watcher now.
			k.resync()
			return false
		}
		wake := k.next.Load()
		if wake == 0 {
			return false
		}
		if d := time.Until(time.UnixMilli(wake)); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-k.revoke:
				t.Stop()
				continue
			case <-k.kick:
				t.Stop()
				continue
			case <-t.C:
			}
		}
		k.Apply(time.Now().UnixMilli())
	}
}

// resync re-offers the authoritative next wake moment after the line was
// reclaimed, covering a deadline that moved while a firing pass ran.
func (k *TimeKeeper) resync() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.line.Load() != nil {
		return
	}
	if wake := k.next.Load(); wake > 0 {
		if l := k.conveyor.switchTimer(wake); l != nil {
			l.unpark(k)
		}
	}
}

func poke(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
