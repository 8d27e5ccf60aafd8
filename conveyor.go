package conveyor

import (
	"context"
	"time"

	"github.com/taskline/conveyor/core"
)

// Re-exported core types. See the core package for details.
type (
	Conveyor        = core.Conveyor
	Unit            = core.Unit
	UnitFunc        = core.UnitFunc
	Waiting         = core.Waiting
	Config          = core.Config
	Logger          = core.Logger
	Field           = core.Field
	Metrics         = core.Metrics
	PanicHandler    = core.PanicHandler
	Supervisor      = core.Supervisor
	GroupSupervisor = core.GroupSupervisor
)

// ErrFinished is returned by Push on a destroyed conveyor.
var ErrFinished = core.ErrFinished

// Line priority scale.
const (
	PriorityMin  = core.PriorityMin
	PriorityNorm = core.PriorityNorm
	PriorityMax  = core.PriorityMax
)

// NewSolo creates a conveyor with a single execution line.
func NewSolo(name string, cfg *Config) *Conveyor {
	return core.NewSolo(name, cfg)
}

// NewMulti creates a conveyor with up to lines execution lines.
func NewMulti(name string, lines int, cfg *Config) *Conveyor {
	return core.NewMulti(name, lines, cfg)
}

// Do wraps a one-shot function as a Unit that never repeats.
func Do(f func(ctx context.Context)) Unit {
	return core.Do(f)
}

// F creates a structured logging field.
func F(key string, value any) Field {
	return core.F(key, value)
}

// NewWaiting creates a timer entry that re-enqueues unit at the given
// moment. Register it with Conveyor.Append.
func NewWaiting(u Unit, at time.Time) *Waiting {
	return core.NewWaiting(u, at)
}

// FromContext returns the conveyor executing the current unit, or nil.
func FromContext(ctx context.Context) *Conveyor {
	return core.FromContext(ctx)
}

// NewGroupSupervisor creates a supervisor for an independent conveyor
// group; pass it through Config.Supervisor.
func NewGroupSupervisor(log Logger) *GroupSupervisor {
	return core.NewGroupSupervisor(log)
}

// DefaultConfig returns a config with default collaborators.
func DefaultConfig() *Config {
	return core.DefaultConfig()
}

// Close drains and destroys every conveyor registered with the default
// supervisor, blocking until all of them finished.
func Close() {
	core.DefaultSupervisor().Close()
}
