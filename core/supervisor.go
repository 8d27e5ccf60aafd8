package core

import (
	"sync"
	"sync/atomic"
)

// Supervisor coordinates the destruction of a group of conveyors. A
// conveyor is never destroyed while a line is active; instead it reports
// readiness once drained and the supervisor decides when the readiness
// becomes final.
//
// Every method may be called with a conveyor mutex held, so implementations
// must never call back into a conveyor while holding their own locks.
type Supervisor interface {
	// Register adds a conveyor to the group on construction.
	Register(c *Conveyor)

	// Deregister removes a destroyed conveyor from the group.
	Deregister(c *Conveyor)

	// Ready reports that the conveyor drained after a shutdown request.
	Ready(c *Conveyor)

	// Unready retracts a readiness report because new work arrived.
	Unready(c *Conveyor)

	// Trapped reports whether destruction is currently authorized.
	Trapped() bool

	// Kill destroys every conveyor that is still ready and shut down.
	Kill()
}

// GroupSupervisor is the standard supervisor. It tracks registered
// conveyors, collects readiness reports and offers a blocking Close for a
// whole-group stop.
type GroupSupervisor struct {
	log Logger

	mu      sync.Mutex
	cond    *sync.Cond
	convs   map[*Conveyor]struct{}
	ready   map[*Conveyor]struct{}
	closing bool

	trap atomic.Bool
}

// NewGroupSupervisor creates an empty supervisor.
func NewGroupSupervisor(log Logger) *GroupSupervisor {
	if log == nil {
		log = NewDefaultLogger()
	}
	s := &GroupSupervisor{
		log:   log,
		convs: make(map[*Conveyor]struct{}),
		ready: make(map[*Conveyor]struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

var (
	defaultSupOnce sync.Once
	defaultSup     *GroupSupervisor
)

// DefaultSupervisor returns the process-wide supervisor used by conveyors
// configured without an explicit one.
func DefaultSupervisor() *GroupSupervisor {
	defaultSupOnce.Do(func() {
		defaultSup = NewGroupSupervisor(NewDefaultLogger())
	})
	return defaultSup
}

func (s *GroupSupervisor) Register(c *Conveyor) {
	s.mu.Lock()
	s.convs[c] = struct{}{}
	s.mu.Unlock()
}

func (s *GroupSupervisor) Deregister(c *Conveyor) {
	s.mu.Lock()
	delete(s.convs, c)
	delete(s.ready, c)
	if s.closing {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// Ready records a drained conveyor. Outside of a group close the report
// authorizes destruction immediately: the reporting line destroys its own
// conveyor on the way out. During a close the supervisor waits for the
// whole group first.
func (s *GroupSupervisor) Ready(c *Conveyor) {
	s.mu.Lock()
	s.ready[c] = struct{}{}
	if !s.closing && c.IsShutdown() {
		s.trap.Store(true)
	}
	if s.closing && len(s.ready) >= len(s.convs) {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

func (s *GroupSupervisor) Unready(c *Conveyor) {
	s.mu.Lock()
	delete(s.ready, c)
	s.mu.Unlock()
}

func (s *GroupSupervisor) Trapped() bool { return s.trap.Load() }

// Kill destroys every ready, shut-down conveyor. A conveyor that picked up
// new work between its report and this call stays alive.
func (s *GroupSupervisor) Kill() {
	s.mu.Lock()
	var victims []*Conveyor
	for c := range s.ready {
		if c.IsShutdown() {
			victims = append(victims, c)
			delete(s.ready, c)
		}
	}
	if !s.closing {
		s.trap.Store(false)
	}
	s.mu.Unlock()
	for _, c := range victims {
		c.tryKill()
	}
}

// Close requests shutdown of every registered conveyor and blocks until
// all of them drained and were destroyed. New conveyors must not be
// created during a close.
func (s *GroupSupervisor) Close() {
	s.mu.Lock()
	s.closing = true
	all := make([]*Conveyor, 0, len(s.convs))
	for c := range s.convs {
		all = append(all, c)
	}
	s.mu.Unlock()

	s.log.Info("supervisor closing", F("conveyors", len(all)))
	for _, c := range all {
		c.Shutdown()
	}

	s.mu.Lock()
	for len(s.ready) < len(s.convs) {
		s.cond.Wait()
	}
	s.closing = false
	s.mu.Unlock()
	s.Kill()
	s.log.Info("supervisor closed")
}

// ForceClose requests shutdown of every registered conveyor without
// waiting; each is destroyed as soon as it drains.
func (s *GroupSupervisor) ForceClose() {
	s.mu.Lock()
	all := make([]*Conveyor, 0, len(s.convs))
	for c := range s.convs {
		all = append(all, c)
	}
	s.mu.Unlock()

	s.trap.Store(true)
	for _, c := range all {
		c.Shutdown()
	}
	s.Kill()
}
