//go:build linux || darwin

package uthreads

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/oberon-labs/uthreads/internal/fiber"
)

// osExit is os.Exit, indirected so tests can observe a would-be system-error
// exit without killing the test binary.
var osExit = os.Exit

// scheduler is the process-global state machine. There is exactly one
// instance, sched — one scheduler per process, as with one kernel thread
// per process; every field it owns is touched only with gate held, except
// the fiber.Handoff/fiber.Wake calls themselves, which must happen outside
// the gate (they block, and blocking while holding the gate would freeze
// every other caller, including the timer's own tick-processing goroutine).
type scheduler struct {
	gate signalGate

	table threadTable
	ready readyQueue
	sleepTbl sleepTable

	currentTid    int
	totalQuantums int
	quantumUsecs  int
	stackSize     int
	shouldExit    bool
	initialized   bool

	// quantumExpired is set by onTick and cleared by whichever thread's
	// checkpoint next observes it — see checkpoint's doc comment and
	// DESIGN.md for why this, not a forcibly-reassigned current_tid, is
	// the preemption mechanism a portable Go implementation can offer.
	quantumExpired bool

	pendingDeletion []int

	timer preemptionTimer
}

var sched scheduler

// init brings up thread 0 in state Running, counts its first quantum, and
// arms the preemption timer. quantumUsecs > 0 is assumed already validated
// by the façade.
func (s *scheduler) init(quantumUsecs int, cfg *initOptions) error {
	rec0 := newMainThread()
	s.gate.withGate(func() {
		s.table = threadTable{}
		s.ready = readyQueue{}
		s.sleepTbl = newSleepTable()
		s.pendingDeletion = nil
		s.table.insertAt(0, rec0)
		s.currentTid = 0
		s.totalQuantums = 1
		rec0.quantumCount = 1
		s.quantumUsecs = quantumUsecs
		s.stackSize = cfg.stackSize
		s.shouldExit = false
		s.quantumExpired = false
		s.initialized = true
	})

	if err := s.timer.arm(quantumUsecs, s.onTick); err != nil {
		logSystemError("failed to arm preemption timer: %v", err)
		osExit(1)
		return &SystemError{Op: "arm timer", Cause: err}
	}
	logInfo("scheduler", 0, fmt.Sprintf("initialized with quantum_usecs=%d", quantumUsecs))
	return nil
}

// spawn allocates the lowest free tid, builds the thread's context, and
// enqueues it Ready at the back of the queue. entry is assumed non-nil; the
// façade rejects nil before this is reached.
func (s *scheduler) spawn(entry func(), stackHint int) (int, error) {
	s.checkpoint()

	var tid int
	var ok bool
	var notInit bool
	s.gate.withGate(func() {
		if !s.initialized {
			notInit = true
			return
		}
		if s.stackSize > 0 {
			stackHint = s.stackSize
		}
		placeholder := &threadRecord{state: Ready}
		tid, ok = s.table.insertLowestFree(placeholder)
		if !ok {
			return
		}
		rec := newThread(tid, entry, stackHint, func() { s.onEntryReturn(tid) })
		s.table.insertAt(tid, rec)
		s.ready.pushBack(tid)
	})
	if notInit {
		return 0, ErrNotInitialized
	}
	if !ok {
		return 0, ErrNoFreeSlot
	}
	logInfo("scheduler", tid, "thread spawned")
	return tid, nil
}

// terminate dispatches among the three termination cases: killing the whole
// process (tid == 0), killing another thread, or self-termination.
func (s *scheduler) terminate(tid int) error {
	s.checkpoint()

	if tid == 0 {
		var isSelf bool
		var callerRec *threadRecord
		s.gate.withGate(func() {
			isSelf = s.currentTid == 0
			if !isSelf {
				callerRec = s.table.get(s.currentTid)
			}
		})
		if isSelf {
			s.runExitCeremony()
			return nil // unreachable: runExitCeremony calls osExit
		}
		s.terminateZeroFromOther(callerRec)
		return nil // unreachable on a real process: the caller never resumes
	}

	var exists, isCurrent bool
	s.gate.withGate(func() {
		exists = s.table.get(tid) != nil
		isCurrent = exists && tid == s.currentTid
	})
	if !exists {
		return &InvalidTidError{Tid: tid, Reason: "no such thread"}
	}
	if !isCurrent {
		s.gate.withGate(func() {
			s.ready.remove(tid)
			s.sleepTbl.remove(tid)
			s.table.remove(tid)
		})
		logInfo("scheduler", tid, "thread terminated by another thread")
		return nil
	}
	return s.terminateSelf(tid)
}

// terminateZeroFromOther forces tid 0 to be the sole runnable thread and
// hands off to it directly; the exit ceremony runs once tid 0 resumes and
// observes shouldExit. Never returns to callerRec's goroutine.
func (s *scheduler) terminateZeroFromOther(callerRec *threadRecord) {
	var rec0 *threadRecord
	s.gate.withGate(func() {
		rec0 = s.table.get(0)
		rec0.state = Ready // dispatchable even if tid 0 was blocked or asleep
		s.sleepTbl.remove(0)
		s.ready.resetTo(0)
		s.ready.popFront()
		s.currentTid = 0
		rec0.state = Running
		rec0.quantumCount++
		s.totalQuantums++
		s.shouldExit = true
	})
	fiber.Handoff(rec0.ctx, callerRec.ctx)
}

// terminateSelf handles a thread terminating itself: the record goes on the
// pending-deletion list and freeing is deferred until the switch away has
// happened, since the stack we are running on must remain valid until then.
func (s *scheduler) terminateSelf(tid int) error {
	var selfRec *threadRecord
	var fatal bool
	s.gate.withGate(func() {
		selfRec = s.table.get(tid)
		s.pendingDeletion = append(s.pendingDeletion, tid)
		selfRec.state = Ready
		if s.ready.isEmpty() {
			fatal = true
		}
	})
	if fatal {
		logSystemError("self-termination of tid %d left no runnable thread", tid)
		osExit(1)
		return nil
	}
	s.doContextSwitch(selfRec, true)
	return nil // unreachable: doContextSwitch(terminating) never resumes this goroutine
}

// onEntryReturn runs, on the terminating thread's own goroutine, when a
// spawned entry function falls off the end without an explicit Terminate
// call. Treated identically to Terminate(GetTid()) called from inside the
// thread.
func (s *scheduler) onEntryReturn(tid int) {
	_ = s.terminateSelf(tid)
}

// block sets tid's user-block flag and parks it. A no-op if the flag is
// already set. Blocking the running thread forces a context switch; that is
// rejected when no successor exists to switch to.
func (s *scheduler) block(tid int) error {
	s.checkpoint()

	var rejectNoSuccessor bool
	var selfRec *threadRecord
	var needSwitch bool
	s.gate.withGate(func() {
		rec := s.table.get(tid)
		if rec.userBlocked {
			return
		}
		switch rec.state {
		case Ready:
			s.ready.remove(tid)
			rec.state = Blocked
			rec.userBlocked = true
		case Blocked:
			rec.userBlocked = true
		case Running:
			if s.ready.isEmpty() {
				rejectNoSuccessor = true
				return
			}
			rec.userBlocked = true
			rec.state = Blocked
			selfRec = rec
			needSwitch = true
		}
	})
	if rejectNoSuccessor {
		return ErrNoRunnableSuccessor
	}
	if needSwitch {
		s.doContextSwitch(selfRec, false)
	}
	return nil
}

// resume clears tid's user-block flag. A thread that is also sleeping stays
// Blocked until its wake-at arrives; otherwise it goes straight back to the
// ready queue.
func (s *scheduler) resume(tid int) {
	s.checkpoint()

	s.gate.withGate(func() {
		rec := s.table.get(tid)
		if rec.state != Blocked {
			return
		}
		if _, sleeping := s.sleepTbl.get(tid); sleeping {
			rec.userBlocked = false
			return
		}
		rec.userBlocked = false
		rec.state = Ready
		s.ready.pushBack(tid)
	})
}

// sleep parks the current thread until numQuantums more quantum starts have
// happened. The façade rejects tid 0 and numQuantums <= 0 before this.
func (s *scheduler) sleep(numQuantums int) error {
	s.checkpoint()

	var rejectNoSuccessor bool
	var selfRec *threadRecord
	s.gate.withGate(func() {
		if s.ready.isEmpty() {
			rejectNoSuccessor = true
			return
		}
		selfRec = s.table.get(s.currentTid)
		selfRec.state = Blocked
		s.sleepTbl.insert(selfRec.tid, s.totalQuantums+numQuantums)
	})
	if rejectNoSuccessor {
		return ErrNoRunnableSuccessor
	}
	s.doContextSwitch(selfRec, false)
	return nil
}

// getTid, getTotalQuantums and getQuantums are the read-only getters. Each
// runs checkpoint first: since they are the calls a busy-wait loop naturally
// makes over and over, they double as the library's cooperative preemption
// points (see DESIGN.md).
func (s *scheduler) getTid() int {
	s.checkpoint()
	var tid int
	s.gate.withGate(func() { tid = s.currentTid })
	return tid
}

func (s *scheduler) getTotalQuantums() int {
	s.checkpoint()
	var n int
	s.gate.withGate(func() { n = s.totalQuantums })
	return n
}

func (s *scheduler) getQuantums(tid int) (int, bool) {
	s.checkpoint()
	var n int
	var ok bool
	s.gate.withGate(func() {
		rec := s.table.get(tid)
		if rec == nil {
			return
		}
		ok = true
		n = rec.quantumCount
	})
	return n, ok
}

// exists reports whether tid currently names a live thread. Used by the
// façade (uthreads.go) to turn Block/Resume on a dead or never-spawned tid
// into an InvalidTidError rather than silently doing nothing.
func (s *scheduler) exists(tid int) bool {
	s.checkpoint()
	var ok bool
	s.gate.withGate(func() { ok = s.table.get(tid) != nil })
	return ok
}

// wakeSleepingThreads releases every sleeper whose wake-at has arrived.
// Must be called with the gate already held.
func (s *scheduler) wakeSleepingThreads() {
	for _, tid := range s.sleepTbl.expired(s.totalQuantums) {
		s.sleepTbl.remove(tid)
		rec := s.table.get(tid)
		if rec == nil {
			continue
		}
		if !rec.userBlocked {
			rec.state = Ready
			s.ready.pushBack(tid)
		}
		// else stays Blocked with the flag set: sleep and user-block stay
		// orthogonal, and only an explicit resume clears the flag.
	}
}

// onTick is the preemption timer's tick callback (timer.go), run from its
// own monitor goroutine — never concurrently with another tick, but
// concurrently with whatever the currently-running thread is doing. It
// performs the wake-sleepers half of the preemption handler; the
// context-switch half is deferred to the running thread's own next
// checkpoint, since a goroutine that isn't the running thread has no
// standing to switch away from it (see DESIGN.md).
func (s *scheduler) onTick() {
	s.gate.withGate(func() {
		s.wakeSleepingThreads()
		s.quantumExpired = true
	})
}

// checkpoint processes one overdue quantum boundary, if any, on behalf of
// whichever thread calls it. Called at the top of every façade operation.
func (s *scheduler) checkpoint() {
	var due bool
	var selfRec *threadRecord
	s.gate.withGate(func() {
		if !s.quantumExpired {
			return
		}
		s.quantumExpired = false
		due = true
		selfRec = s.table.get(s.currentTid)
	})
	if due && selfRec != nil {
		s.doContextSwitch(selfRec, false)
	}
}

// doContextSwitch moves execution from selfRec — always the thread calling
// this, on its own goroutine — to the head of the ready queue. terminating
// marks a self-termination in progress: selfRec is already Ready and
// pending-deletion, and an empty ready queue is fatal rather than the
// degenerate re-run case.
func (s *scheduler) doContextSwitch(selfRec *threadRecord, terminating bool) {
	var nextRec *threadRecord
	var reRun, fatal bool

	s.gate.withGate(func() {
		// The empty check must come before the self-enqueue: when the caller
		// is the only runnable thread at a quantum boundary, it is re-run as
		// a new quantum. Enqueueing first would pop the caller straight back
		// off the queue and hand off to itself — a send the sole running
		// goroutine can never receive.
		if s.ready.isEmpty() {
			if terminating {
				fatal = true
				return
			}
			selfRec.quantumCount++
			s.totalQuantums++
			selfRec.state = Running
			reRun = true
			return
		}

		if !terminating && selfRec.state == Running {
			selfRec.state = Ready
			s.ready.pushBack(selfRec.tid)
		}

		nextTid, _ := s.ready.popFront()
		nextRec = s.table.get(nextTid)
		s.currentTid = nextTid
		nextRec.state = Running
		nextRec.quantumCount++
		s.totalQuantums++
	})

	if fatal {
		logSystemError("context switch left no runnable thread")
		osExit(1)
		return
	}
	if reRun {
		return
	}

	logDebug("scheduler", nextRec.tid, "context switch", map[string]any{"from": selfRec.tid})

	if terminating {
		// Wake the successor and end this goroutine instead of parking it
		// forever: the terminated thread must never run user code again.
		// Goexit still runs any deferred calls on the dying goroutine; those
		// are not ordered against the successor, which may already be running
		// and reclaiming the pending-deletion record.
		fiber.Wake(nextRec.ctx)
		runtime.Goexit()
	}

	fiber.Handoff(nextRec.ctx, selfRec.ctx)

	// selfRec has been redispatched: run the post-resume steps before
	// returning to whichever library call is waiting.
	s.afterResume()
}

// afterResume runs the post-resume half of a context switch, immediately
// after a thread has been handed the baton back: exit if tid 0 resumed with
// shouldExit set, then reclaim pending-deletion records — safe now that
// execution is on a different stack than the ones being freed.
func (s *scheduler) afterResume() {
	var exitNow bool
	s.gate.withGate(func() {
		if s.shouldExit && s.currentTid == 0 {
			exitNow = true
			return
		}
		if len(s.pendingDeletion) > 0 {
			for _, tid := range s.pendingDeletion {
				s.table.remove(tid)
			}
			s.pendingDeletion = s.pendingDeletion[:0]
		}
	})
	if exitNow {
		s.runExitCeremony()
	}
}

// runExitCeremony frees every thread record, disarms the timer, flushes
// standard output and exits the process with code 0. Never returns.
func (s *scheduler) runExitCeremony() {
	s.gate.withGate(func() {
		s.table = threadTable{}
		s.ready = readyQueue{}
		s.sleepTbl = newSleepTable()
		s.pendingDeletion = nil
		s.initialized = false
	})
	if err := s.timer.disarm(); err != nil {
		logSystemError("failed to disarm preemption timer during exit: %v", err)
	}
	_ = os.Stdout.Sync() // os.Stdout is unbuffered; explicit flush kept so nothing is lost on exotic stdout targets.
	logInfo("scheduler", 0, "exit ceremony complete")
	osExit(0)
}

// DebugDump renders a one-line-per-thread snapshot of the scheduler, in tid
// order. Intended for interactive debugging, not parsed output.
func DebugDump() string {
	var lines []string
	sched.gate.withGate(func() {
		var tids []int
		sched.table.all(func(rec *threadRecord) { tids = append(tids, rec.tid) })
		sort.Ints(tids)
		for _, tid := range tids {
			rec := sched.table.get(tid)
			marker := " "
			if tid == sched.currentTid {
				marker = "*"
			}
			line := fmt.Sprintf("%s tid=%-3d state=%-7s quantums=%-4d user_blocked=%v",
				marker, rec.tid, rec.state, rec.quantumCount, rec.userBlocked)
			if at, sleeping := sched.sleepTbl.get(tid); sleeping {
				line += fmt.Sprintf(" wake_at=%d", at)
			}
			lines = append(lines, line)
		}
		lines = append(lines, fmt.Sprintf("total_quantums=%d current_tid=%d", sched.totalQuantums, sched.currentTid))
	})
	return strings.Join(lines, "\n")
}
