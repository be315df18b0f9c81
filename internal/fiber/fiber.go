// Package fiber provides opaque save/restore of a user thread's point of
// execution — the role sigsetjmp/siglongjmp over a private stack plays in a
// C user-thread library. The Go-native equivalent implemented here is a
// single baton, passed between goroutines each parked in a receive on their
// own channel, never two running at once.
//
// The protocol is deliberately symmetric and its main primitive is Handoff,
// rather than separate "restore" and "save" calls: whichever goroutine
// currently holds the baton is the one that both wakes its successor and
// parks itself, in the same call. Wake (hand off without parking, for a
// thread that is ending) and ParkSelf (park without handing off) cover the
// two one-sided cases. See the root package's
// scheduler.go (doContextSwitch) for the caller side, and DESIGN.md for the
// one documented limitation this buys in exchange for portability: a thread
// that never calls back into the library cannot be forced off the baton.
package fiber

// Context is an opaque, single-owner handle to one thread's point of
// execution. The zero value is not usable; construct with New or NewMain.
type Context struct {
	resume chan struct{}
}

// NewMain returns the Context for tid 0. Unlike a spawned thread, tid 0's
// body is the host's pre-existing goroutine — there is nothing to launch —
// but it shares the same resume channel so it can be parked and woken by
// Handoff exactly like any other thread.
func NewMain() *Context {
	return &Context{resume: make(chan struct{})}
}

// New builds a Context whose first Handoff starts entry running on a fresh
// goroutine. entry must never be called directly by user code; it is always
// invoked through the goroutine New starts.
//
// stackHint is carried for parity with the library's per-thread stack
// budget but is otherwise unused: goroutine stacks start at 2KiB and grow
// on demand, so there is no fixed arena to size here (see DESIGN.md).
// onReturn is invoked, still on entry's own goroutine, whenever entry
// returns; a goroutine that ends inside entry (runtime.Goexit) never reaches
// it. It gives the scheduler a chance to run the same self-termination
// bookkeeping it would run for an explicit terminate call.
func New(entry func(), stackHint int, onReturn func()) *Context {
	_ = stackHint
	c := &Context{resume: make(chan struct{})}
	go func() {
		<-c.resume
		entry()
		onReturn()
	}()
	return c
}

// Handoff transfers the baton: it wakes next (which must currently be
// waiting on its resume channel, either because it was just spawned or
// because it parked itself at an earlier switch point) and then parks the calling
// goroutine on self until some later Handoff wakes it again. Called from
// inside the currently-running thread's own goroutine — never externally.
// next must be a different Context than self: handing off to oneself is a
// send no goroutine is positioned to receive.
func Handoff(next, self *Context) {
	next.resume <- struct{}{}
	<-self.resume
}

// Wake transfers the baton to next without parking the caller. Used by a
// terminating thread's final switch, which gives up its baton for good and
// ends its goroutine rather than parking.
func Wake(next *Context) {
	next.resume <- struct{}{}
}

// ParkSelf blocks the calling goroutine until a Handoff or Wake targets it.
// Used directly (rather than via Handoff) only when the caller has no
// baton-holding predecessor to notify — not called by the scheduler (New's
// goroutine waits on its resume channel directly), kept exported for
// symmetry and for tests.
func ParkSelf(self *Context) {
	<-self.resume
}
