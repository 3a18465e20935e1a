package pdo

import "golang.org/x/sys/unix"

// rtPriorityNice is the scheduling priority the 500 Hz loop asks the
// OS for: the lowest (most favorable) nice value, to keep the
// self-correcting executor's sleep/wake cycle as jitter-free as the
// host will allow. Raising priority generally requires privileges the
// process may not have, so failures here are logged, not fatal — the
// loop still runs, just at default scheduling priority.
const rtPriorityNice = -20

// RaisePriority asks the OS scheduler for a more favorable priority on
// the calling OS thread's process, the way the teacher's socketcan
// backend reaches past the transport abstraction for raw socket
// options via golang.org/x/sys/unix. Engine.loop calls it at the start
// of the PDO loop goroutine; Go's goroutine scheduler gives no
// per-goroutine priority knob — only a process-wide one.
func RaisePriority(log logger) {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, rtPriorityNice); err != nil {
		log.Warnf("pdo: raise scheduling priority: %v (continuing at default priority)", err)
	}
}

// logger is the minimal surface RaisePriority needs, satisfied by
// *logrus.Entry, so this file doesn't force an import cycle back onto
// the logging package from a syscall-only concern.
type logger interface {
	Warnf(format string, args ...interface{})
}
