package core

import (
	"container/heap"
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestTimeKeeper_DelayFires verifies basic timer delivery
// Given: An idle solo conveyor
// When: A unit is scheduled 50ms out
// Then: It executes shortly after the deadline, not before
func TestTimeKeeper_DelayFires(t *testing.T) {
	// Arrange
	c := NewSolo("delay", newTestConfig())
	fired := make(chan time.Time, 1)
	start := time.Now()

	// Act
	c.Delay(Do(func(ctx context.Context) {
		fired <- time.Now()
	}), 50*time.Millisecond)

	// Assert
	select {
	case at := <-fired:
		if elapsed := at.Sub(start); elapsed < 45*time.Millisecond {
			t.Errorf("fired after %v, want >=50ms", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

// TestTimeKeeper_RemoveCancels verifies cancellation
// Given: A scheduled timer entry
// When: Remove is called before the deadline
// Then: The unit never executes and Remove reports success once
func TestTimeKeeper_RemoveCancels(t *testing.T) {
	// Arrange
	c := NewSolo("cancel", newTestConfig())
	var executed atomic.Int32

	w := c.Delay(Do(func(ctx context.Context) {
		executed.Add(1)
	}), 150*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	// Act
	first := c.Remove(w)
	second := c.Remove(w)

	time.Sleep(300 * time.Millisecond)

	// Assert
	if !first {
		t.Error("first Remove() = false, want true")
	}
	if second {
		t.Error("second Remove() = true, want false")
	}
	if n := executed.Load(); n != 0 {
		t.Errorf("executed = %d after cancel, want 0", n)
	}
}

// TestTimeKeeper_FiresInDeadlineOrder verifies deadline ordering
// Given: Two timers scheduled out of order
// When: Both fire
// Then: The earlier deadline executes first
func TestTimeKeeper_FiresInDeadlineOrder(t *testing.T) {
	// Arrange
	c := NewSolo("order", newTestConfig())
	rec := &record{}

	// Act - later deadline scheduled first
	c.Delay(Do(func(ctx context.Context) { rec.add("late") }), 150*time.Millisecond)
	c.Delay(Do(func(ctx context.Context) { rec.add("early") }), 50*time.Millisecond)

	time.Sleep(400 * time.Millisecond)

	// Assert
	got := rec.snapshot()
	if len(got) != 2 || got[0] != "early" || got[1] != "late" {
		t.Fatalf("fired %v, want [early late]", got)
	}
}

// TestTimeKeeper_PushReclaimsWatchingLine verifies the hybrid hand-off
// Given: A solo conveyor whose only line watches a far-off timer
// When: A user unit is pushed
// Then: The unit runs promptly and the timer still fires on time
func TestTimeKeeper_PushReclaimsWatchingLine(t *testing.T) {
	// Arrange
	c := NewSolo("reclaim", newTestConfig())
	rec := &record{}
	start := time.Now()
	timerAt := make(chan time.Duration, 1)

	c.Delay(Do(func(ctx context.Context) {
		rec.add("timer")
		timerAt <- time.Since(start)
	}), 300*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	// Act - the watching line must be reclaimed for this
	unitDone := make(chan time.Duration, 1)
	c.Push(Do(func(ctx context.Context) {
		rec.add("unit")
		unitDone <- time.Since(start)
	}))

	// Assert
	select {
	case elapsed := <-unitDone:
		if elapsed > 200*time.Millisecond {
			t.Errorf("unit ran after %v, want well before the 300ms timer", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("pushed unit never executed")
	}
	select {
	case elapsed := <-timerAt:
		if elapsed < 290*time.Millisecond {
			t.Errorf("timer fired after %v, want >=300ms", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired after the line was reclaimed")
	}
	got := rec.snapshot()
	if len(got) != 2 || got[0] != "unit" || got[1] != "timer" {
		t.Fatalf("order %v, want [unit timer]", got)
	}
}

// TestTimeKeeper_FiresUnderFullLoad verifies self-tracking between units
// Given: A solo conveyor grinding through a stream of units
// When: A timer comes due while every line is busy
// Then: The conveyor notices between units and the timer unit executes
func TestTimeKeeper_FiresUnderFullLoad(t *testing.T) {
	// Arrange
	c := NewSolo("loaded", newTestConfig())
	var timerRan atomic.Int32

	for i := 0; i < 6; i++ {
		c.Push(Do(func(ctx context.Context) {
			time.Sleep(40 * time.Millisecond)
		}))
	}
	time.Sleep(10 * time.Millisecond)

	// Act - scheduled while under load, no line to lend
	c.Delay(Do(func(ctx context.Context) {
		timerRan.Add(1)
	}), 60*time.Millisecond)

	time.Sleep(600 * time.Millisecond)

	// Assert
	if n := timerRan.Load(); n != 1 {
		t.Errorf("timer executed %d times, want 1", n)
	}
}

// TestTimeKeeper_EarlierTimerPreemptsWatch verifies watch re-arming
// Given: A line watching a far-off deadline
// When: A nearer deadline is scheduled
// Then: The nearer one fires first and on time
func TestTimeKeeper_EarlierTimerPreemptsWatch(t *testing.T) {
	// Arrange
	c := NewSolo("preempt", newTestConfig())
	rec := &record{}
	start := time.Now()
	earlyAt := make(chan time.Duration, 1)

	c.Delay(Do(func(ctx context.Context) { rec.add("late") }), 300*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	// Act
	c.Delay(Do(func(ctx context.Context) {
		rec.add("early")
		earlyAt <- time.Since(start)
	}), 60*time.Millisecond)

	time.Sleep(500 * time.Millisecond)

	// Assert
	select {
	case elapsed := <-earlyAt:
		if elapsed > 200*time.Millisecond {
			t.Errorf("early timer fired after %v, want ~80ms", elapsed)
		}
	default:
		t.Fatal("early timer never fired")
	}
	got := rec.snapshot()
	if len(got) != 2 || got[0] != "early" || got[1] != "late" {
		t.Fatalf("order %v, want [early late]", got)
	}
}

// TestTimeKeeper_TimerSize verifies timer accounting
func TestTimeKeeper_TimerSize(t *testing.T) {
	c := NewSolo("tsize", newTestConfig())

	w1 := c.Delay(Do(func(ctx context.Context) {}), time.Hour)
	w2 := c.Delay(Do(func(ctx context.Context) {}), 2*time.Hour)
	if n := c.TimerSize(); n != 2 {
		t.Errorf("TimerSize() = %d, want 2", n)
	}

	c.Remove(w1)
	c.Remove(w2)
	if n := c.TimerSize(); n != 0 {
		t.Errorf("TimerSize() after removal = %d, want 0", n)
	}
}

// TestWaitingHeap_Ordering verifies the deadline heap invariant
// Given: Entries pushed in arbitrary order
// When: They are popped
// Then: They come out earliest-deadline first
func TestWaitingHeap_Ordering(t *testing.T) {
	base := time.Now()
	h := &waitingHeap{}
	for _, offset := range []time.Duration{300, 100, 200, 50} {
		heap.Push(h, NewWaiting(Do(func(ctx context.Context) {}), base.Add(offset*time.Millisecond)))
	}

	var got []int64
	for h.Len() > 0 {
		got = append(got, heap.Pop(h).(*Waiting).wakeAt)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Fatalf("popped out of order: %v", got)
		}
	}
}

// TestTimeKeeper_ClearUnderLoadLeavesStaleHybrid verifies the flag swap a
// timer clear performs when no line can be lent
// Given: A loaded solo conveyor tracking a timer itself
// When: The timer is removed while the line is still busy
// Then: The Hybrid flag is raised with no line lent, and the next asleep
//       resolves it
func TestTimeKeeper_ClearUnderLoadLeavesStaleHybrid(t *testing.T) {
	// Arrange
	c := NewSolo("stale", newTestConfig())
	c.Push(Do(func(ctx context.Context) {
		time.Sleep(150 * time.Millisecond)
	}))
	time.Sleep(10 * time.Millisecond)

	w := c.Delay(Do(func(ctx context.Context) {}), time.Hour)
	if got := c.flags.mask(maskKeep); got != keepActive {
		t.Fatalf("keep submask = %#x while loaded, want keepActive", got)
	}

	// Act
	c.Remove(w)

	// Assert - the clear swapped the keep submask for the Hybrid flag
	if got := c.flags.mask(maskKeep); got != keepNone {
		t.Errorf("keep submask = %#x after clear, want none", got)
	}
	if !c.flags.has(flagHybrid) {
		t.Error("Hybrid flag not raised by the loaded clear")
	}

	time.Sleep(250 * time.Millisecond)
	if c.flags.has(flagHybrid) {
		t.Error("stale Hybrid flag survived the line going to sleep")
	}
	if !c.flags.has(flagIdle) {
		t.Error("conveyor not idle after the drain")
	}

	var executed atomic.Int32
	c.Push(Do(func(ctx context.Context) { executed.Add(1) }))
	time.Sleep(100 * time.Millisecond)
	if n := executed.Load(); n != 1 {
		t.Errorf("executed = %d after stale flag resolution, want 1", n)
	}
}

// TestConveyor_SwitchTimerZeroWithFreeLine verifies the no-watcher answer
// Given: An idle conveyor with a free line available
// When: The keeper renegotiates with no deadline
// Then: No line is lent and no flag changes
func TestConveyor_SwitchTimerZeroWithFreeLine(t *testing.T) {
	c := NewSolo("noop-switch", newTestConfig())
	before := c.flags.bits.Load()

	if l := c.switchTimer(0); l != nil {
		t.Errorf("switchTimer(0) = %v, want nil", l)
	}
	if after := c.flags.bits.Load(); after != before {
		t.Errorf("flags changed %#x -> %#x across switchTimer(0)", before, after)
	}
}

// TestTimeKeeper_RelendDuringStalledFiringPass verifies watcher succession
// Given: A multi conveyor whose watching line stalls re-enqueuing a fired
//        unit because the conveyor mutex is held
// When: The stalled line is reclaimed for a user unit and the watch is
//       lent to a fresh line before the stalled one resumes
// Then: The stalled line steps down, every unit runs exactly once, the
//       conveyor returns to idle and shutdown completes
func TestTimeKeeper_RelendDuringStalledFiringPass(t *testing.T) {
	// Arrange
	c := NewMulti("succession", 2, newTestConfig())
	var fired, pushed atomic.Int32

	c.Delay(Do(func(ctx context.Context) { fired.Add(1) }), 40*time.Millisecond)
	far := c.Delay(Do(func(ctx context.Context) {}), 10*time.Hour)
	time.Sleep(10 * time.Millisecond)

	// Act - hold the mutex across the deadline so the watcher blocks in
	// Push mid firing pass, then reclaim and re-lend under that same hold,
	// exactly as a push and a later sleep interleave in production
	c.mu.Lock()
	time.Sleep(100 * time.Millisecond)

	c.policy.wakeup(Do(func(ctx context.Context) { pushed.Add(1) }))
	p := c.policy.(*multiPolicy)
	b := c.createLine(nil, PriorityNorm)
	p.lines = append(p.lines, b)
	if next := c.hybridInvoke(b); next != nil {
		p.hyb = b
		b.unpark(next)
	} else {
		t.Error("keeper refused the replacement line")
	}
	c.mu.Unlock()

	// Assert
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.flags.has(flagIdle) && fired.Load() == 1 && pushed.Load() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := fired.Load(); n != 1 {
		t.Errorf("due unit executed %d times, want 1", n)
	}
	if n := pushed.Load(); n != 1 {
		t.Errorf("pushed unit executed %d times, want 1", n)
	}
	if !c.flags.has(flagIdle) {
		t.Fatal("conveyor never returned to idle after the drain")
	}

	c.Remove(far)
	c.Shutdown()
	time.Sleep(200 * time.Millisecond)
	if err := c.Push(Do(func(ctx context.Context) {})); err != ErrFinished {
		t.Errorf("Push() after shutdown = %v, want ErrFinished", err)
	}
}

// TestTimeKeeper_MultiLendsSpareLine verifies lending on a multi conveyor
// Given: A multi conveyor with one busy line and spare capacity
// When: A timer is scheduled
// Then: It fires on time without disturbing the busy line
func TestTimeKeeper_MultiLendsSpareLine(t *testing.T) {
	// Arrange
	c := NewMulti("spare", 3, newTestConfig())
	var busyDone, timerRan atomic.Int32

	c.Push(Do(func(ctx context.Context) {
		time.Sleep(150 * time.Millisecond)
		busyDone.Add(1)
	}))
	time.Sleep(10 * time.Millisecond)

	// Act
	c.Delay(Do(func(ctx context.Context) {
		timerRan.Add(1)
	}), 50*time.Millisecond)

	time.Sleep(300 * time.Millisecond)

	// Assert
	if n := timerRan.Load(); n != 1 {
		t.Errorf("timer executed %d times, want 1", n)
	}
	if n := busyDone.Load(); n != 1 {
		t.Errorf("busy unit executed %d times, want 1", n)
	}
}
