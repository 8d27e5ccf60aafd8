//go:build !linux

package core

// currentThreadID is unavailable on this platform.
func currentThreadID() int {
	return 0
}

// applyLinePriority is a no-op on platforms without a thread priority
// mechanism exposed through x/sys.
func applyLinePriority(tid, value int) error {
	return nil
}
