// Package uthreads implements a user-level preemptive thread library for a
// single POSIX process, multiplexing many user "threads" onto one kernel
// thread by means of a periodic virtual-time interrupt.
//
// # Architecture
//
// The library is built around a scheduler core that owns the thread table,
// the ready queue, the sleep table, and the current-thread bookkeeping. A
// Context (package internal/fiber) provides opaque save/restore of a
// thread's point of execution; threads are cooperatively handed control by
// the scheduler and voluntarily give it back at [Sleep], [Block], and
// [Terminate] call sites, or at the next public API call after a quantum
// boundary — see the package README in DESIGN.md for why genuine
// asynchronous preemption of non-cooperating code is out of reach of
// portable Go.
//
// # Platform Support
//
// The preemption timer is programmed against virtual (on-CPU) time using
// SIGVTALRM and setitimer(2), available on Linux and Darwin
// ([golang.org/x/sys/unix]). There is no Windows backend: ITIMER_VIRTUAL has
// no Windows equivalent, and this is inherent to the domain, not a missing
// feature.
//
// # Thread Safety
//
// [Init], [Spawn], [Terminate], [Block], [Resume], and [Sleep] are safe to
// call from any user thread running under the scheduler; every mutation of
// shared scheduler state happens inside the critical section established by
// the signal gate (package-internal, gate.go). [GetTid],
// [GetTotalQuantums], and [GetQuantums] are always safe.
//
// # Usage
//
//	if err := uthreads.Init(1000000); err != nil {
//	    log.Fatal(err)
//	}
//
//	tid, err := uthreads.Spawn(func() {
//	    fmt.Println("child running as tid", uthreads.GetTid())
//	    uthreads.Terminate(uthreads.GetTid())
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Busy-wait until the child's slot is freed; the getter calls double
//	// as the library's cooperative preemption checkpoints, see DESIGN.md.
//	for {
//	    if _, err := uthreads.GetQuantums(tid); err != nil {
//	        break
//	    }
//	}
//
// # Error Types
//
// The package distinguishes two error taxa:
//   - Library errors ([RangeError], [InvalidTidError], and the sentinel
//     values in errors.go): the caller did something invalid; the offending
//     call returns a non-nil error (and, via the façade, -1) and no global
//     state changes except where explicitly documented.
//   - System errors: a syscall needed to run the scheduler at all failed
//     (arming the timer, installing the signal handler). These are fatal —
//     logged with the "system error:" prefix and followed by os.Exit(1).
package uthreads
