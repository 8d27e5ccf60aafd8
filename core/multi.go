package core

import "fmt"

// multiPolicy runs a conveyor on up to size lines, created lazily as load
// demands and parked on a free list between units. At most one of them may
// be lent to the time keeper at a time.
type multiPolicy struct {
	c    *Conveyor
	size int
	prio int

	lines []*Line // every line ever created
	free  []*Line // parked lines
	hyb   *Line   // line lent to the time keeper, nil when none
	busy  int     // lines currently executing user units
}

func (p *multiPolicy) kind() string { return "MultiConveyor" }

// freeLines counts lines that could take a unit right now: parked ones,
// uncreated capacity and the keeper's line, which is reclaimable.
func (p *multiPolicy) freeLines() int {
	n := len(p.free) + (p.size - len(p.lines))
	if p.hyb != nil {
		n++
	}
	return n
}

func (p *multiPolicy) wakeup(u Unit) {
	if p.c.flags.has(flagLoad) {
		panic(fmt.Sprintf("conveyor %q: wakeup under full load", p.c.name))
	}
	p.c.flags.clear(flagIdle)
	p.busy++
	switch {
	case len(p.free) > 0:
		l := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		l.unpark(u)
	case p.hyb != nil:
		// Reclaim the keeper's line. The unit travels through the queue;
		// the line polls it on its way out of the watch loop.
		p.c.hybridRevoke()
		p.c.queue.add(u)
		p.hyb = nil
	case len(p.lines) < p.size:
		p.lines = append(p.lines, p.c.createLine(u, p.prio))
	default:
		panic(fmt.Sprintf("conveyor %q: no line to wake", p.c.name))
	}
	if p.freeLines() == 0 {
		p.c.flags.set(flagLoad)
	}
}

func (p *multiPolicy) asleep(l *Line) Unit {
	p.c.flags.clear(flagLoad)
	if p.hyb == l {
		// The keeper's line came back on its own: no timers remain.
		p.c.flags.clear(flagHybrid)
		p.c.keeper.Release()
		p.hyb = nil
	} else {
		if p.hyb == nil {
			// A Hybrid flag with no lent line is left over from a timer
			// clear under full load; drop it now that a line is free.
			p.c.flags.clear(flagHybrid)
		}
		p.busy--
	}

	var next Unit
	if !p.c.flags.has(flagHybrid) {
		if next = p.c.hybridInvoke(l); next != nil {
			p.hyb = l
		}
	}
	if next == nil {
		p.free = append(p.free, l)
	}
	if p.busy == 0 {
		p.c.flags.set(flagIdle)
	}
	return next
}

func (p *multiPolicy) hybrid() *Line {
	p.c.flags.set(flagHybrid)
	var l *Line
	if n := len(p.free); n > 0 {
		l = p.free[n-1]
		p.free = p.free[:n-1]
	} else if len(p.lines) < p.size {
		l = p.c.createLine(nil, p.prio)
		p.lines = append(p.lines, l)
	} else {
		panic(fmt.Sprintf("conveyor %q: no free line for the time keeper", p.c.name))
	}
	p.hyb = l
	return l
}

func (p *multiPolicy) setPriority(value int) {
	p.prio = value
	for _, l := range p.lines {
		l.setPriority(value)
	}
}
