package core

import "sync/atomic"

// Flag layout of the conveyor state register. Single flags may be read or
// written lock-free; compound transitions that must preserve an invariant
// across several flags happen only under the conveyor mutex.
const (
	// flagIdle: no line is executing a user unit. One line may still be
	// lent to the time keeper; keeper duty does not count as load.
	flagIdle uint32 = 1 << iota
	// flagLoad: no line is free to accept a unit, the designated keeper
	// line included. While raised, wakeup must not be called.
	flagLoad
	// flagHybrid: exactly one line is lent to the time keeper. Formally
	// free, it is reclaimed automatically when a user unit needs it.
	flagHybrid
	keepLow
	keepHigh
	// flagShutdown: shutdown was requested. Queued work still drains and
	// units may keep arriving until the conveyor is finally destroyed.
	flagShutdown
	// flagFinished: the conveyor was destroyed. Permanent; no unit is
	// accepted past this point.
	flagFinished
)

// The two-bit keep submask tracks who watches the clock for the time
// keeper when no line can be dedicated to it.
const (
	maskKeep = keepLow | keepHigh
	// keepNone: the conveyor is not tracking time. Either no timers are
	// pending or a lent line watches them.
	keepNone uint32 = 0
	// keepLock: a timer-processing pass is running with the conveyor
	// mutex released. The next deadline must not be touched until the
	// pass reconciles.
	keepLock = keepLow
	// keepConfus: a writer tried to change the deadline during an
	// in-flight unlocked pass. The pass must requery the keeper for the
	// authoritative value.
	keepConfus = keepHigh
	// keepActive: every line is busy and the conveyor itself compares
	// the clock against nextTimer between units. Uses both bits so a
	// plain all-bits test recognises it without masking first.
	keepActive = maskKeep
)

/* Reachable combinations of Idle, Load and Hybrid:
 *    0 |  0  |  0      some lines busy, keeper has no line
 *    0 |  0  |Hybrid   some lines busy, one line watches timers
 *    0 |Load |  0      every line busy
 *    0 |Load |Hybrid   every other line busy, one watches timers
 *  Idle|  0  |  0      nothing to do, all lines parked
 *  Idle|  0  |Hybrid   nothing to do, one line watches timers
 *  Idle|Load |  0      impossible: idle yet no free line
 *  Idle|Load |Hybrid   impossible: a lent line still counts as reclaimable
 */

// flagSet is the guarded bit-field behind the conveyor state register.
type flagSet struct {
	bits atomic.Uint32
}

// set raises every bit of mask; reports whether at least one was clear.
func (f *flagSet) set(mask uint32) bool {
	for {
		old := f.bits.Load()
		if old&mask == mask {
			return false
		}
		if f.bits.CompareAndSwap(old, old|mask) {
			return true
		}
	}
}

// clear drops every bit of mask; reports whether at least one was set.
func (f *flagSet) clear(mask uint32) bool {
	for {
		old := f.bits.Load()
		if old&mask == 0 {
			return false
		}
		if f.bits.CompareAndSwap(old, old&^mask) {
			return true
		}
	}
}

// has reports whether any bit of mask is set.
func (f *flagSet) has(mask uint32) bool { return f.bits.Load()&mask != 0 }

// every reports whether all bits of mask are set.
func (f *flagSet) every(mask uint32) bool { return f.bits.Load()&mask == mask }

// mask returns the current bits under mask.
func (f *flagSet) mask(mask uint32) uint32 { return f.bits.Load() & mask }

// turn replaces the bits under mask with value.
func (f *flagSet) turn(mask, value uint32) {
	for {
		old := f.bits.Load()
		if f.bits.CompareAndSwap(old, old&^mask|value) {
			return
		}
	}
}

// exchange drops every bit of drop and raises every bit of raise in one
// transition.
func (f *flagSet) exchange(drop, raise uint32) {
	f.turn(drop|raise, raise)
}
