package core

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// Conveyor is a named pool of execution lines pulling units from a FIFO
// queue, with an integrated time keeper that borrows an idle line instead
// of needing a dedicated watcher thread.
//
// The conveyor owns the exchange protocol (Push/swap), the state register
// and the timer hand-off; a linePolicy owns line allocation, so pool
// sizing stays out of the base.
type Conveyor struct {
	name    string
	log     Logger
	metrics Metrics
	panics  PanicHandler
	sup     Supervisor

	mu     sync.Mutex
	flags  flagSet
	queue  *unitQueue
	keeper *TimeKeeper
	policy linePolicy

	// nextTimer is the next deadline the conveyor itself compares the
	// clock against between units; meaningful only while the keep
	// submask is Active.
	nextTimer int64

	lineSeq atomic.Int64
}

func newConveyor(name string, cfg *Config, policy func(*Conveyor, int) linePolicy) *Conveyor {
	conf := cfg.withDefaults()
	c := &Conveyor{
		name:    name,
		log:     conf.Logger,
		metrics: conf.Metrics,
		panics:  conf.PanicHandler,
		sup:     conf.Supervisor,
		queue:   newUnitQueue(),
	}
	c.flags.set(flagIdle)
	c.keeper = newTimeKeeper(c, conf.TimerLogger)
	c.policy = policy(c, clampPriority(conf.Priority))
	c.sup.Register(c)
	return c
}

// NewSolo creates a conveyor with a single execution line.
func NewSolo(name string, cfg *Config) *Conveyor {
	return newConveyor(name, cfg, func(c *Conveyor, prio int) linePolicy {
		return &soloPolicy{c: c, prio: prio}
	})
}

// NewMulti creates a conveyor with up to lines execution lines, created
// lazily as load demands.
func NewMulti(name string, lines int, cfg *Config) *Conveyor {
	if lines < 1 {
		panic(fmt.Sprintf("conveyor %q: line count %d out of range", name, lines))
	}
	return newConveyor(name, cfg, func(c *Conveyor, prio int) linePolicy {
		return &multiPolicy{c: c, size: lines, prio: prio}
	})
}

// Name returns the conveyor name.
func (c *Conveyor) Name() string { return c.name }

// Kind describes the conveyor flavor, for logs and diagnostics.
func (c *Conveyor) Kind() string { return c.policy.kind() }

// createLine starts a new execution line. The initial unit is handed over
// before launch; nil parks the line right away.
func (c *Conveyor) createLine(initial Unit, priority int) *Line {
	l := newLine(c, fmt.Sprintf("%s/%d", c.name, c.lineSeq.Add(1)))
	l.setPriority(priority)
	l.start(initial)
	return l
}

// =============================================================================
// Unit exchange: Push and swap
// =============================================================================

// Push hands one unit to the conveyor. With a free line the unit starts
// immediately; otherwise it is queued and runs in arrival order.
func (c *Conveyor) Push(u Unit) error {
	c.mu.Lock()
	if c.flags.has(flagFinished) {
		c.mu.Unlock()
		c.metrics.RecordUnitRejected(c.name, "finished")
		return ErrFinished
	}
	if c.flags.has(flagShutdown) {
		c.sup.Unready(c) // retract a pending destruction signal
	}
	c.log.Debug("push unit", F("conveyor", c.name), F("unit", unitName(u)))
	if c.flags.has(flagLoad) {
		c.queue.add(u)
	} else {
		c.policy.wakeup(u)
	}
	depth := c.queue.size()
	c.mu.Unlock()
	c.metrics.RecordQueueDepth(c.name, depth)
	return nil
}

// PushAll hands over a batch of units, preserving their order.
func (c *Conveyor) PushAll(units []Unit) error {
	c.mu.Lock()
	if c.flags.has(flagFinished) {
		c.mu.Unlock()
		c.metrics.RecordUnitRejected(c.name, "finished")
		return ErrFinished
	}
	if c.flags.has(flagShutdown) {
		c.sup.Unready(c)
	}
	c.log.Debug("push unit batch", F("conveyor", c.name), F("size", len(units)))
	for _, u := range units {
		if c.flags.has(flagLoad) {
			c.queue.add(u)
		} else {
			c.policy.wakeup(u)
		}
	}
	depth := c.queue.size()
	c.mu.Unlock()
	c.metrics.RecordQueueDepth(c.name, depth)
	return nil
}

// swap exchanges the line's current unit for the next one to execute.
// Passing a unit keeps it scheduled: with a non-empty queue it moves to
// the tail and the oldest pending unit is returned, with an empty queue
// it is returned unchanged. Passing nil with an empty queue puts the line
// to sleep; only swap takes lines out of service, and only swap signals
// the supervisor when the conveyor drains.
func (c *Conveyor) swap(line *Line, current Unit) Unit {
	c.mu.Lock()
	// Timers come first: a due timer must surface its unit before older
	// queued work is handed out, or units would jump their place in line.
	if c.flags.every(keepActive) {
		c.checkTimer()
	}

	if next := c.queue.poll(); next != nil {
		if current != nil {
			c.queue.add(current)
		}
		c.mu.Unlock()
		return next
	}
	if current != nil {
		c.mu.Unlock()
		return current
	}
	next := c.policy.asleep(line)
	if c.flags.every(flagIdle | flagShutdown) {
		c.sup.Ready(c)
		if c.sup.Trapped() {
			c.log.Debug("trap: supervisor is destroying conveyors", F("conveyor", c.name))
			c.mu.Unlock()
			c.sup.Kill()
			return unitKill
		}
	}
	c.mu.Unlock()
	return next
}

// =============================================================================
// Timer hand-off
// =============================================================================

// Append registers a waiting timer entry; its unit re-enters the queue
// once the moment arrives.
func (c *Conveyor) Append(w *Waiting) *Waiting {
	c.keeper.Push(w)
	c.metrics.RecordTimerDepth(c.name, c.keeper.QueueSize())
	return w
}

// Remove cancels a waiting entry that has not fired yet.
func (c *Conveyor) Remove(w *Waiting) bool {
	ok := c.keeper.Take(w)
	c.metrics.RecordTimerDepth(c.name, c.keeper.QueueSize())
	return ok
}

// Delay schedules the unit to run after d.
func (c *Conveyor) Delay(u Unit, d time.Duration) *Waiting {
	return c.Append(NewWaiting(u, time.Now().Add(d)))
}

// hybridInvoke offers a freed line to the time keeper. Only called when
// the Hybrid flag is clear. Returns the keeper as the line's next unit
// when the keeper takes it, nil when the line should just park.
func (c *Conveyor) hybridInvoke(line *Line) Unit {
	if c.clearTimer() {
		c.keeper.Invoke(line)
		return c.keeper
	}
	// Timers can be pending with nobody tracking them when a deadline
	// arrived in the gap between a watcher deciding to step down and its
	// release. A line going to sleep is the moment to pick that watch up.
	if c.flags.mask(maskKeep) == keepNone && !c.flags.has(flagHybrid) &&
		c.keeper.NextWakeup() > 0 {
		c.flags.set(flagHybrid)
		c.keeper.Invoke(line)
		return c.keeper
	}
	return nil
}

// hybridRevoke reclaims the keeper's line for a user unit. Only called
// while the Hybrid flag is set; the reclaimed line picks the unit up from
// the queue on its way out. Self-tracking resumes when timers remain.
func (c *Conveyor) hybridRevoke() {
	wake := c.keeper.Revoke()
	c.flags.clear(flagHybrid)
	if wake > 0 {
		c.updateTimer(wake)
	}
}

// clearTimer stops the conveyor's own clock watching. Reports true when
// tracking was active and is now handed over to a dedicated line; from
// inside an unlocked pass the attempt only escalates to the confused
// state.
func (c *Conveyor) clearTimer() bool {
	switch c.flags.mask(maskKeep) {
	case keepActive:
		c.flags.exchange(maskKeep, flagHybrid)
		c.nextTimer = 0
		return true
	case keepLock:
		c.flags.turn(maskKeep, keepConfus)
		return false
	default:
		return false
	}
}

// updateTimer stores a new deadline for the conveyor's own clock watching,
// activating it on the first deadline. During an unlocked pass the write
// is not applied; the pass is flagged to requery instead.
func (c *Conveyor) updateTimer(wake int64) {
	switch c.flags.mask(maskKeep) {
	case keepNone:
		c.flags.turn(maskKeep, keepActive)
		c.nextTimer = wake
	case keepActive:
		c.nextTimer = wake
	case keepLock:
		c.flags.turn(maskKeep, keepConfus)
	case keepConfus:
		// already flagged
	}
}

// switchTimer renegotiates who watches the clock. Called by the time
// keeper, which holds its own lock while calling in; the reverse lock
// order is never taken. With a free line and a real deadline the keeper
// is lent a hybrid line; under full load the conveyor keeps (or stops)
// tracking time itself.
func (c *Conveyor) switchTimer(wake int64) *Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Lending needs a free line AND a conveyor that is not already
	// tracking time some other way; a lend on top of an in-flight pass or
	// active self-tracking would set up two concurrent watchers.
	if !c.flags.has(flagLoad) && !c.flags.has(flagHybrid) &&
		c.flags.mask(maskKeep) == keepNone {
		if wake > 0 {
			l := c.policy.hybrid()
			c.keeper.Invoke(l)
			return l
		}
		return nil
	}
	if wake > 0 {
		c.updateTimer(wake)
	} else {
		c.clearTimer()
	}
	return nil
}

// checkTimer compares the clock against nextTimer and, when due, runs a
// firing pass through the keeper. Only valid while the keep submask is
// Active, with the conveyor mutex held.
//
// The mutex is released around the pass: firing entries re-enqueues their
// units, which would deadlock against Push, and the pass itself can be
// slow. The keep submask guards the window; a concurrent writer escalates
// it to Confus, in which case the keeper is requeried for the
// authoritative deadline once the mutex is back.
func (c *Conveyor) checkTimer() {
	c.keeper.log.Debug("checking timers", F("conveyor", c.name))
	now := time.Now().UnixMilli()
	if now < c.nextTimer {
		return
	}

	c.flags.turn(maskKeep, keepLock)
	c.mu.Unlock()
	newTimer := c.keeper.Apply(now)
	c.mu.Lock()

	switch c.flags.mask(maskKeep) {
	case keepConfus:
		// Someone changed the deadline during the pass, or a line freed
		// up and could watch instead. Requery, and prefer lending a line
		// over resuming self-tracking.
		c.keeper.log.Debug("contended timer pass, requerying", F("conveyor", c.name))
		newTimer = c.keeper.NextWakeup()
		if newTimer > 0 && !c.flags.has(flagLoad) && !c.flags.has(flagHybrid) {
			newTimer = 0
			l := c.policy.hybrid()
			c.keeper.Invoke(l)
			l.unpark(c.keeper)
		}
		fallthrough
	case keepLock:
		if newTimer > 0 {
			c.flags.turn(maskKeep, keepActive)
		} else {
			c.flags.turn(maskKeep, keepNone)
		}
		c.nextTimer = newTimer
	default:
		panic(fmt.Sprintf("conveyor %q: unreachable keep state %#x",
			c.name, c.flags.mask(maskKeep)))
	}
}

// =============================================================================
// Shutdown and lifecycle
// =============================================================================

// Shutdown requests a full stop. Queued units still drain, and units may
// keep arriving until the supervisor authorizes destruction. Idempotent.
func (c *Conveyor) Shutdown() {
	c.mu.Lock()
	if !c.flags.set(flagShutdown) {
		c.mu.Unlock()
		return
	}
	c.log.Info("shutdown requested", F("conveyor", c.name))
	if c.flags.has(flagIdle) {
		c.sup.Ready(c)
		if c.sup.Trapped() {
			c.log.Debug("trap: supervisor is destroying conveyors", F("conveyor", c.name))
			c.mu.Unlock()
			c.sup.Kill()
			return
		}
	}
	c.mu.Unlock()
}

// IsShutdown reports whether shutdown was requested. Lock-free.
func (c *Conveyor) IsShutdown() bool { return c.flags.has(flagShutdown) }

// Kill destroys the conveyor. Invoked by the supervisor once destruction
// is authorized; every parked line is driven to self-terminate and no
// unit is accepted afterwards. Panics when any line still runs a unit.
func (c *Conveyor) Kill() {
	c.mu.Lock()
	if !c.flags.has(flagIdle) {
		c.mu.Unlock()
		panic(fmt.Sprintf("conveyor %q: cannot destroy a conveyor with an active line", c.name))
	}
	c.killLocked()
	c.mu.Unlock()
}

// tryKill is the supervisor-side variant tolerating a conveyor that picked
// up new work between the readiness signal and destruction.
func (c *Conveyor) tryKill() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.flags.has(flagIdle) {
		c.log.Debug("destruction skipped, conveyor active again", F("conveyor", c.name))
		return false
	}
	c.killLocked()
	return true
}

func (c *Conveyor) killLocked() {
	if c.flags.has(flagFinished) {
		return
	}
	c.log.Info("conveyor destroyed", F("conveyor", c.name))
	c.sup.Deregister(c)
	c.flags.clear(flagShutdown)
	for !c.flags.has(flagLoad) {
		c.policy.wakeup(unitKill)
	}
	c.flags.set(flagShutdown | flagFinished)
}

// AssertAlive cancels a pending destruction signal after new work arrived.
// Fails once the conveyor was destroyed.
func (c *Conveyor) AssertAlive() error {
	if c.flags.has(flagFinished) {
		return ErrFinished
	}
	c.sup.Unready(c)
	return nil
}

// =============================================================================
// Diagnostics
// =============================================================================

// QueueSize returns the number of pending units.
func (c *Conveyor) QueueSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.size()
}

// TimerSize returns the number of waiting timer entries.
func (c *Conveyor) TimerSize() int { return c.keeper.QueueSize() }

// Priority sets the OS thread priority (1..10 scale) for every line.
func (c *Conveyor) Priority(value int) *Conveyor {
	c.mu.Lock()
	c.policy.setPriority(clampPriority(value))
	c.mu.Unlock()
	return c
}

// PriorityRelative adjusts priority around the platform default, clamped
// to two steps either way.
func (c *Conveyor) PriorityRelative(value int) *Conveyor {
	if value > 2 {
		value = 2
	} else if value < -2 {
		value = -2
	}
	return c.Priority(PriorityNorm + value)
}

// unitName labels a unit for debug logs: its type plus a short identity
// hash, so two instances of the same type stay distinguishable.
func unitName(u Unit) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%p", u)
	return fmt.Sprintf("%T#%08x", u, h.Sum32())
}
