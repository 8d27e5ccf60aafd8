package core

import "fmt"

// soloPolicy runs a conveyor on exactly one line, created on first use.
// Pushed units and lent keeper duty therefore strictly alternate: any user
// unit instantly reclaims the line from the time keeper.
type soloPolicy struct {
	c    *Conveyor
	prio int

	line *Line
	lent bool // line is on keeper duty
}

func (p *soloPolicy) kind() string { return "SoloConveyor" }

func (p *soloPolicy) wakeup(u Unit) {
	if p.c.flags.has(flagLoad) {
		panic(fmt.Sprintf("conveyor %q: wakeup under full load", p.c.name))
	}
	p.c.flags.clear(flagIdle)
	switch {
	case p.line == nil:
		p.line = p.c.createLine(u, p.prio)
	case p.lent:
		p.c.hybridRevoke()
		p.c.queue.add(u)
		p.lent = false
	default:
		p.line.unpark(u)
	}
	p.c.flags.set(flagLoad)
}

func (p *soloPolicy) asleep(l *Line) Unit {
	p.c.flags.clear(flagLoad)
	if p.lent {
		// Back from keeper duty on its own: no timers remain.
		p.c.flags.clear(flagHybrid)
		p.c.keeper.Release()
		p.lent = false
	} else if p.c.flags.has(flagHybrid) {
		// Left over from a timer clear under load; no line was lent.
		p.c.flags.clear(flagHybrid)
	}

	next := p.c.hybridInvoke(l)
	if next != nil {
		p.lent = true
	}
	p.c.flags.set(flagIdle)
	return next
}

func (p *soloPolicy) hybrid() *Line {
	p.c.flags.set(flagHybrid)
	if p.line == nil {
		p.line = p.c.createLine(nil, p.prio)
	}
	p.lent = true
	return p.line
}

func (p *soloPolicy) setPriority(value int) {
	p.prio = value
	if p.line != nil {
		p.line.setPriority(value)
	}
}
