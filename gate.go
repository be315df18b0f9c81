package uthreads

import "sync"

// signalGate is the library's sole critical-section primitive: all
// scheduler state is mutated only inside withGate.
//
// A sigprocmask-style library would mask SIGVTALRM around every mutation so
// the timer's handler cannot run mid-update. Here, signal.Notify already
// delivers signals asynchronously through a channel that is read at the
// program's own pace — there is no mask syscall to make, because "masking"
// falls out for free as long as the goroutine that turns a timer tick into
// a scheduler action acquires the same mutex every public API call
// acquires. That is exactly what withGate does; see timer.go for the
// tick-consuming side.
//
// Library critical sections never nest — nesting is avoided by
// construction, not by reference counting — so a plain sync.Mutex is
// sufficient; reentrant locking would be a bug, not a feature to support.
type signalGate struct {
	mu sync.Mutex
}

// withGate runs fn with the gate held.
func (g *signalGate) withGate(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}
