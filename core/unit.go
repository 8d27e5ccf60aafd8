package core

import "context"

// Unit is the unit of work a conveyor line executes. Execute runs one
// slice of work; returning true asks the conveyor to keep the unit on its
// line (the unit is exchanged through swap and re-runs once every older
// queued unit had its turn), returning false releases the line.
//
// The conveyor treats units as opaque. Identity is only needed for timer
// bookkeeping, where entries are addressed through their Waiting handle.
type Unit interface {
	Execute(ctx context.Context) bool
}

// UnitFunc adapts a plain function to the Unit interface.
type UnitFunc func(ctx context.Context) bool

func (f UnitFunc) Execute(ctx context.Context) bool { return f(ctx) }

// Do wraps a one-shot function as a Unit that never repeats.
func Do(f func(ctx context.Context)) Unit {
	return UnitFunc(func(ctx context.Context) bool {
		f(ctx)
		return false
	})
}

// killUnit is the terminal sentinel handed to a line to end its loop.
// It never executes.
type killUnit struct{}

func (killUnit) Execute(context.Context) bool { return false }

var unitKill Unit = killUnit{}

// =============================================================================
// Context Helper
// =============================================================================

type conveyorKeyType struct{}

var conveyorKey conveyorKeyType

// FromContext returns the conveyor executing the current unit, or nil when
// the context did not come from a conveyor line.
func FromContext(ctx context.Context) *Conveyor {
	if v := ctx.Value(conveyorKey); v != nil {
		return v.(*Conveyor)
	}
	return nil
}
