package uthreads

import "github.com/oberon-labs/uthreads/internal/fiber"

// StackSize is the reference per-thread stack budget in bytes. See Context
// in internal/fiber and WithStackSize for how this is honored under
// goroutine stacks rather than a fixed arena.
const StackSize = 4096

// threadRecord is the per-thread state: tid, run state, quantum count,
// user-block flag, and execution context. There is no separate stack field —
// ownership of the stack is entirely inside *fiber.Context for tid > 0, and
// degenerate for tid 0, which runs on the host's initial stack.
type threadRecord struct {
	tid          int
	state        RunState
	quantumCount int
	userBlocked  bool
	ctx          *fiber.Context
}

// newMainThread builds tid 0: Running, no owned stack, its first entry is
// the already-running host goroutine.
func newMainThread() *threadRecord {
	return &threadRecord{
		tid:   0,
		state: Running,
		ctx:   fiber.NewMain(),
	}
}

// newThread builds a spawned thread: Ready, with a fresh stack and a
// Context pointing at entry. onReturn runs, on entry's own goroutine, if
// entry falls off the end without the caller having already terminated
// itself explicitly — see scheduler.go's spawn.
func newThread(tid int, entry func(), stackHint int, onReturn func()) *threadRecord {
	return &threadRecord{
		tid:   tid,
		state: Ready,
		ctx:   fiber.New(entry, stackHint, onReturn),
	}
}
