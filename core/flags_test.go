package core

import "testing"

// TestFlagSet_SetClearReporting verifies change reporting
// Given: An empty flag set
// When: Bits are set and cleared repeatedly
// Then: Only calls that change state report true
func TestFlagSet_SetClearReporting(t *testing.T) {
	var f flagSet

	if !f.set(flagIdle) {
		t.Error("set(Idle) on empty = false, want true")
	}
	if f.set(flagIdle) {
		t.Error("set(Idle) again = true, want false")
	}
	if !f.clear(flagIdle) {
		t.Error("clear(Idle) = false, want true")
	}
	if f.clear(flagIdle) {
		t.Error("clear(Idle) again = true, want false")
	}
}

// TestFlagSet_HasEvery verifies the any/all distinction
func TestFlagSet_HasEvery(t *testing.T) {
	var f flagSet
	f.set(flagIdle | flagShutdown)

	if !f.has(flagIdle | flagLoad) {
		t.Error("has(Idle|Load) = false with Idle set, want true")
	}
	if f.every(flagIdle | flagLoad) {
		t.Error("every(Idle|Load) = true without Load, want false")
	}
	if !f.every(flagIdle | flagShutdown) {
		t.Error("every(Idle|Shutdown) = false with both set, want true")
	}
}

// TestFlagSet_TurnReplacesSubmask verifies masked replacement
// Given: A keep submask in the Lock state
// When: turn writes the Confus state
// Then: Only the submask changes, other flags survive
func TestFlagSet_TurnReplacesSubmask(t *testing.T) {
	var f flagSet
	f.set(flagLoad)
	f.turn(maskKeep, keepLock)

	f.turn(maskKeep, keepConfus)

	if got := f.mask(maskKeep); got != keepConfus {
		t.Errorf("keep submask = %#x, want keepConfus %#x", got, keepConfus)
	}
	if !f.has(flagLoad) {
		t.Error("Load flag lost across turn")
	}
}

// TestFlagSet_ExchangeIsAtomicPair verifies the drop+raise transition
// Given: The Active keep state
// When: exchange drops the submask and raises Hybrid
// Then: Both edits land in one transition
func TestFlagSet_ExchangeIsAtomicPair(t *testing.T) {
	var f flagSet
	f.turn(maskKeep, keepActive)

	f.exchange(maskKeep, flagHybrid)

	if got := f.mask(maskKeep); got != keepNone {
		t.Errorf("keep submask = %#x after exchange, want none", got)
	}
	if !f.has(flagHybrid) {
		t.Error("Hybrid flag not raised by exchange")
	}
}

// TestFlagSet_KeepActiveUsesBothBits verifies the all-bits Active encoding
func TestFlagSet_KeepActiveUsesBothBits(t *testing.T) {
	var f flagSet
	f.turn(maskKeep, keepActive)
	if !f.every(keepActive) {
		t.Error("every(keepActive) = false in Active state, want true")
	}

	f.turn(maskKeep, keepLock)
	if f.every(keepActive) {
		t.Error("every(keepActive) = true in Lock state, want false")
	}
}
