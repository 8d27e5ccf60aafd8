//go:build linux

package core

import "golang.org/x/sys/unix"

// currentThreadID returns the kernel thread id of the calling goroutine's
// locked OS thread.
func currentThreadID() int {
	return unix.Gettid()
}

// applyLinePriority maps the 1..10 priority scale onto a nice value for the
// given thread. Raising priority above the default needs elevated
// privileges; failures are reported for debug logging only.
func applyLinePriority(tid, value int) error {
	nice := (PriorityNorm - clampPriority(value)) * 2
	if nice < -20 {
		nice = -20
	} else if nice > 19 {
		nice = 19
	}
	return unix.Setpriority(unix.PRIO_PROCESS, tid, nice)
}
