package uthreads

// RunState is the run-state of a thread record.
//
// State Machine:
//
//	Ready    → Running   [context switch selects the tid]
//	Running  → Ready     [preemption, or a cooperative non-terminating switch]
//	Running  → Blocked   [block(self) or sleep]
//	Ready    → Blocked   [block(tid) on a ready thread]
//	Blocked  → Ready     [resume (not sleeping), or sleep-wake of a non-user-blocked thread]
//	Blocked  → Blocked   [flag-only change: resume of a sleeping thread, or sleep-wake of a user-blocked thread]
//	any      → (freed)   [terminate]
//
// Every transition above is made under the scheduler's gate (gate.go). A
// state change is always accompanied by ready-queue or sleep-table
// mutations that must stay atomic as a group, so a single mutex protecting
// all of it is used instead of per-field atomics.
type RunState uint8

const (
	// Ready means the thread is in the ready queue, waiting for its turn.
	Ready RunState = iota
	// Running means the thread's tid equals current_tid.
	Running
	// Blocked means the thread is neither in the ready queue nor current;
	// it may additionally be present in the sleep table.
	Blocked
)

// String returns a human-readable representation of the state.
func (s RunState) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}
