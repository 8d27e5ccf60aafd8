package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Line is one conveyor worker. It executes at most one unit at a time and
// exchanges units with its conveyor through swap. A line is bound to its
// conveyor for life and terminates only when handed the kill sentinel.
type Line struct {
	c    *Conveyor
	name string

	// signal is the one-slot hand-off used to unpark the line. The
	// conveyor offers a line at most one unit at a time.
	signal chan Unit

	priority atomic.Int32
	tid      atomic.Int64 // OS thread id once the loop is bound, 0 before
}

func newLine(c *Conveyor, name string) *Line {
	return &Line{
		c:      c,
		name:   name,
		signal: make(chan Unit, 1),
	}
}

type lineKeyType struct{}

var lineKey lineKeyType

// lineFromContext returns the line executing the current unit, or nil when
// the context did not come from a line loop.
func lineFromContext(ctx context.Context) *Line {
	if v := ctx.Value(lineKey); v != nil {
		return v.(*Line)
	}
	return nil
}

// start launches the line with its initial unit. A nil unit parks the line
// immediately.
func (l *Line) start(initial Unit) {
	go l.loop(initial)
}

// unpark hands a unit to a parked line. Offering a second unit before the
// first was consumed is a protocol violation.
func (l *Line) unpark(u Unit) {
	select {
	case l.signal <- u:
	default:
		panic("conveyor: unpark on a line that already holds a pending unit")
	}
}

// park blocks until a unit is handed over.
func (l *Line) park() Unit {
	return <-l.signal
}

// setPriority records the wanted priority (1..10 scale) and applies it to
// the line's OS thread if the loop is already running.
func (l *Line) setPriority(value int) {
	l.priority.Store(int32(value))
	if tid := l.tid.Load(); tid != 0 {
		if err := applyLinePriority(int(tid), value); err != nil {
			l.c.log.Debug("line priority not applied",
				F("line", l.name), F("priority", value), F("error", err))
		}
	}
}

func (l *Line) loop(unit Unit) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	l.tid.Store(int64(currentThreadID()))
	if v := l.priority.Load(); v != 0 && v != PriorityNorm {
		l.setPriority(int(v))
	}

	ctx := context.WithValue(context.Background(), conveyorKey, l.c)
	ctx = context.WithValue(ctx, lineKey, l)
	for {
		if unit == nil {
			unit = l.park()
		}
		if unit == unitKill {
			l.c.log.Debug("line terminated", F("line", l.name))
			return
		}
		if l.run(ctx, unit) {
			unit = l.c.swap(l, unit)
		} else {
			unit = l.c.swap(l, nil)
		}
	}
}

// run executes one unit, containing panics so a misbehaving unit cannot
// take its line down.
func (l *Line) run(ctx context.Context, u Unit) (repeat bool) {
	start := time.Now()
	defer func() {
		l.c.metrics.RecordUnitDuration(l.c.name, time.Since(start))
		if r := recover(); r != nil {
			l.c.metrics.RecordUnitPanic(l.c.name, r)
			l.c.panics.HandlePanic(ctx, l.c.name, l.name, r, debug.Stack())
			repeat = false
		}
	}()
	return u.Execute(ctx)
}
