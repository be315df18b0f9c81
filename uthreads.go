//go:build linux || darwin

// Package uthreads — public API façade.
//
// Every exported function here range-checks its arguments, reports library
// errors on the diagnostic stream with the "thread library error:" prefix,
// and forwards the validated call to the scheduler in scheduler.go. None of
// these functions touch scheduler state directly — that discipline is what
// keeps the façade a thin shim rather than a second copy of the state
// machine.
package uthreads

// Init brings up the scheduler: thread 0 becomes Running and the preemption
// timer is armed at quantumUsecs. Requires quantumUsecs > 0. Behavior on
// repeated calls is undefined — call Init exactly once per process.
func Init(quantumUsecs int, opts ...Option) error {
	if quantumUsecs <= 0 {
		return reject(&RangeError{Arg: "quantum_usecs", Value: quantumUsecs})
	}
	cfg := resolveInitOptions(opts)
	if cfg.logger != nil {
		SetLogger(cfg.logger)
	}
	return sched.init(quantumUsecs, cfg)
}

// Spawn allocates the lowest free tid, builds a stack and context for
// entry, and enqueues it Ready. Returns the new tid, or a non-nil error if
// entry is nil or no slot is free.
func Spawn(entry func()) (int, error) {
	if entry == nil {
		return -1, reject(ErrNilEntry)
	}
	tid, err := sched.spawn(entry, StackSize)
	if err != nil {
		return -1, reject(err)
	}
	return tid, nil
}

// Terminate frees tid's thread record. Terminating tid 0 ends the process:
// if called from tid 0 itself it never returns (the exit ceremony calls
// os.Exit(0)); called from any other thread it forces thread 0 to be the
// sole runnable thread and hands off to it, likewise never returning to the
// caller. Self-termination (tid == the caller's own tid) also never
// returns. Terminating another thread returns normally.
func Terminate(tid int) error {
	if tid < 0 || tid >= MaxThreads {
		return reject(&InvalidTidError{Tid: tid})
	}
	if err := sched.terminate(tid); err != nil {
		return reject(err)
	}
	return nil
}

// Block parks tid until a matching Resume. Blocking tid 0 is rejected —
// the main thread can never be blocked, since nothing else would ever
// resume it on the scheduler's own say-so.
func Block(tid int) error {
	if tid < 0 || tid >= MaxThreads {
		return reject(&InvalidTidError{Tid: tid})
	}
	if tid == 0 {
		return reject(ErrBlockMainThread)
	}
	if !sched.exists(tid) {
		return reject(&InvalidTidError{Tid: tid, Reason: "no such thread"})
	}
	if err := sched.block(tid); err != nil {
		return reject(err)
	}
	return nil
}

// Resume clears tid's user-block flag and, if it is not also sleeping,
// moves it back to Ready. A no-op on a thread that is not currently
// Blocked.
func Resume(tid int) error {
	if tid < 0 || tid >= MaxThreads {
		return reject(&InvalidTidError{Tid: tid})
	}
	if !sched.exists(tid) {
		return reject(&InvalidTidError{Tid: tid, Reason: "no such thread"})
	}
	sched.resume(tid)
	return nil
}

// Sleep parks the calling thread for numQuantums quantum starts. Only
// meaningful for a non-main thread; tid 0 is rejected outright.
func Sleep(numQuantums int) error {
	if numQuantums <= 0 {
		return reject(&RangeError{Arg: "num_quantums", Value: numQuantums})
	}
	if sched.getTid() == 0 {
		return reject(ErrSleepMainThread)
	}
	if err := sched.sleep(numQuantums); err != nil {
		return reject(err)
	}
	return nil
}

// GetTid returns the calling thread's own tid.
func GetTid() int {
	return sched.getTid()
}

// GetTotalQuantums returns the number of quantum starts since Init.
func GetTotalQuantums() int {
	return sched.getTotalQuantums()
}

// GetQuantums returns how many quanta tid has been scheduled for, or a
// non-nil error if tid does not name a live thread.
func GetQuantums(tid int) (int, error) {
	if tid < 0 || tid >= MaxThreads {
		return -1, reject(&InvalidTidError{Tid: tid})
	}
	n, ok := sched.getQuantums(tid)
	if !ok {
		return -1, reject(&InvalidTidError{Tid: tid, Reason: "no such thread"})
	}
	return n, nil
}

// reject logs err on the diagnostic stream with the "thread library
// error:" prefix and returns it unchanged, so every rejecting call site
// above stays a one-liner: `return reject(err)`.
func reject(err error) error {
	logLibraryError("%s", err.Error())
	return err
}
