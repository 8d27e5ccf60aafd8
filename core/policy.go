package core

// linePolicy owns line allocation for one conveyor. The base conveyor
// never creates or frees lines itself; it dispatches through the policy so
// the solo and multi flavors stay small.
//
// Every method is called with the conveyor mutex held.
type linePolicy interface {
	// wakeup dispatches a unit to a free line, creating or reclaiming
	// one when necessary. Must not be called while the Load flag is up.
	wakeup(u Unit)

	// asleep retires a line that found nothing to do. It may hand the
	// line to the time keeper instead; the returned unit is the line's
	// next assignment, nil parks it.
	asleep(l *Line) Unit

	// hybrid produces a parked free line for the time keeper and raises
	// the Hybrid flag. Only called while a free line is guaranteed.
	hybrid() *Line

	// setPriority applies a new line priority to every line.
	setPriority(value int)

	kind() string
}
