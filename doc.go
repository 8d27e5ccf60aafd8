// Package conveyor provides named pools of worker lines that execute units
// of work in arrival order, with an integrated timer facility that borrows
// an idle line to watch the clock instead of running a dedicated thread.
//
// A conveyor is created with a fixed name and line count. Units are pushed
// in and run first-in first-out; a unit may ask to stay on its line by
// returning true from Execute, in which case it is re-run after every older
// queued unit had its turn. Timer entries re-enqueue their unit when their
// moment arrives.
//
// Basic usage:
//
//	c := conveyor.NewMulti("workers", 4, nil)
//	c.Push(conveyor.Do(func(ctx context.Context) {
//		// one-shot work
//	}))
//	c.Delay(conveyor.Do(cleanup), 5*time.Second)
//	...
//	conveyor.Close() // drain and destroy every conveyor
//
// Shutdown is cooperative. A conveyor drains its queue first, then reports
// readiness to its supervisor, which decides when the conveyor is finally
// destroyed; pushing new work in the meantime retracts the report.
//
// The core package holds the implementation; this package re-exports the
// public surface. The logging/zerolog and observability/prometheus packages
// bridge the Logger and Metrics interfaces to those backends.
package conveyor
