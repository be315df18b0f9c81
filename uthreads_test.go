//go:build linux || darwin

package uthreads

import (
	"errors"
	"io"
	"testing"
	"time"
)

// --- Façade argument validation ---
// These never need Init: every case here is rejected before the scheduler is
// touched in any way that depends on prior initialization.

func TestInit_RejectsNonPositiveQuantum(t *testing.T) {
	for _, q := range []int{0, -1, -1000} {
		if err := Init(q); err == nil {
			t.Fatalf("Init(%d) = nil, want a RangeError", q)
		} else {
			var rangeErr *RangeError
			if !errors.As(err, &rangeErr) {
				t.Fatalf("Init(%d) error = %v (%T), want *RangeError", q, err, err)
			}
		}
	}
}

func TestSpawn_RejectsNilEntry(t *testing.T) {
	if _, err := Spawn(nil); !errors.Is(err, ErrNilEntry) {
		t.Fatalf("Spawn(nil) error = %v, want ErrNilEntry", err)
	}
}

func TestTerminate_RejectsOutOfRangeTid(t *testing.T) {
	for _, tid := range []int{-1, MaxThreads, MaxThreads + 50} {
		err := Terminate(tid)
		var tidErr *InvalidTidError
		if !errors.As(err, &tidErr) {
			t.Fatalf("Terminate(%d) error = %v, want *InvalidTidError", tid, err)
		}
	}
}

func TestBlock_RejectsOutOfRangeTid(t *testing.T) {
	for _, tid := range []int{-1, MaxThreads} {
		var tidErr *InvalidTidError
		if err := Block(tid); !errors.As(err, &tidErr) {
			t.Fatalf("Block(%d) error = %v, want *InvalidTidError", tid, err)
		}
	}
}

func TestBlock_RejectsMainThread(t *testing.T) {
	if err := Block(0); !errors.Is(err, ErrBlockMainThread) {
		t.Fatalf("Block(0) error = %v, want ErrBlockMainThread", err)
	}
}

func TestBlock_RejectsUnknownTid(t *testing.T) {
	// A tid in-range but never spawned (and the package scheduler has not
	// been Init'd yet at this point in the file's test order).
	var tidErr *InvalidTidError
	if err := Block(77); !errors.As(err, &tidErr) {
		t.Fatalf("Block(77) error = %v, want *InvalidTidError", err)
	}
}

func TestResume_RejectsOutOfRangeTid(t *testing.T) {
	for _, tid := range []int{-1, MaxThreads} {
		var tidErr *InvalidTidError
		if err := Resume(tid); !errors.As(err, &tidErr) {
			t.Fatalf("Resume(%d) error = %v, want *InvalidTidError", tid, err)
		}
	}
}

func TestSleep_RejectsNonPositiveNumQuantums(t *testing.T) {
	for _, n := range []int{0, -1, -5} {
		var rangeErr *RangeError
		if err := Sleep(n); !errors.As(err, &rangeErr) {
			t.Fatalf("Sleep(%d) error = %v, want *RangeError", n, err)
		}
	}
}

func TestGetQuantums_RejectsOutOfRangeTid(t *testing.T) {
	for _, tid := range []int{-1, MaxThreads} {
		if _, err := GetQuantums(tid); err == nil {
			t.Fatalf("GetQuantums(%d) error = nil, want non-nil", tid)
		}
	}
}

// --- End-to-end lifecycle scenarios ---
//
// A single Init call drives the whole sequence below: repeated Init has
// undefined behavior, so every scenario that needs a live scheduler lives
// as an ordered subtest here instead of its own Init.
//
// All waiting in these tests is done by polling the library's own getters,
// never by blocking on a Go channel or time.Sleep: the running thread must
// keep reaching checkpoints for other threads to be scheduled at all, and
// the getters are exactly the calls a host program busy-waits on. Shared
// plain variables between a child and tid 0 are safe here — execution is
// serialized by the scheduler's handoff, which also establishes the
// happens-before edges.

func TestLifecycleScenarios(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises the real preemption timer; skipped under -short")
	}

	const quantumUsecs = 5000 // 5ms

	// The polling loops below intentionally call getters on freed tids, so
	// route their "thread library error:" lines away from the test output.
	oldDiag := defaultDiagnostic
	defaultDiagnostic = io.Discard
	t.Cleanup(func() { defaultDiagnostic = oldDiag })

	if err := Init(quantumUsecs); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// spinUntil polls the library (hitting a checkpoint on every call) until
	// cond is true, failing the test after a generous wall-clock deadline.
	// The deadline is long because ITIMER_VIRTUAL counts on-CPU time only,
	// which advances slowly on a loaded or heavily descheduled machine.
	spinUntil := func(t *testing.T, what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(30 * time.Second)
		for !cond() {
			GetTid()
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s", what)
			}
		}
	}

	t.Run("init leaves only the main thread", func(t *testing.T) {
		if tid := GetTid(); tid != 0 {
			t.Fatalf("GetTid() = %d, want 0", tid)
		}
		if n := GetTotalQuantums(); n < 1 {
			t.Fatalf("GetTotalQuantums() = %d, want >= 1", n)
		}
		if n, err := GetQuantums(0); err != nil || n < 1 {
			t.Fatalf("GetQuantums(0) = (%d, %v), want (>=1, nil)", n, err)
		}
	})

	t.Run("child runs then self-terminates", func(t *testing.T) {
		var childQuantums int
		tid, err := Spawn(func() {
			n, _ := GetQuantums(GetTid())
			childQuantums = n
			_ = Terminate(GetTid())
		})
		if err != nil {
			t.Fatalf("Spawn: %v", err)
		}

		spinUntil(t, "the child's slot to be freed", func() bool {
			_, err := GetQuantums(tid)
			return err != nil
		})

		if childQuantums < 1 {
			t.Fatalf("child's own quantum count = %d, want >= 1", childQuantums)
		}
		if total := GetTotalQuantums(); total < 2 {
			t.Fatalf("GetTotalQuantums() = %d, want >= 2", total)
		}
	})

	t.Run("sleep is orthogonal to user-block", func(t *testing.T) {
		var woke bool
		tid, err := Spawn(func() {
			_ = Sleep(3)
			woke = true
			_ = Terminate(GetTid())
		})
		if err != nil {
			t.Fatalf("Spawn: %v", err)
		}

		// Let the child run up to its Sleep(3) call.
		spinUntil(t, "the child to fall asleep", func() bool {
			var sleeping bool
			sched.gate.withGate(func() { _, sleeping = sched.sleepTbl.get(tid) })
			return sleeping
		})

		if err := Block(tid); err != nil {
			t.Fatalf("Block: %v", err)
		}

		// Run well past the sleep deadline; the user-block flag must keep
		// the child parked even though its wake-at has arrived.
		start := GetTotalQuantums()
		spinUntil(t, "the sleep deadline to pass", func() bool {
			return GetTotalQuantums() >= start+5
		})
		if woke {
			t.Fatal("child woke from sleep while still user-blocked")
		}

		if err := Resume(tid); err != nil {
			t.Fatalf("Resume: %v", err)
		}
		spinUntil(t, "the child to wake after Resume", func() bool { return woke })
	})

	t.Run("round-robin is fair across all live threads", func(t *testing.T) {
		var stop bool
		var tids []int
		for i := 0; i < 3; i++ {
			tid, err := Spawn(func() {
				for !stop {
					GetTid()
				}
				_ = Terminate(GetTid())
			})
			if err != nil {
				t.Fatalf("Spawn looper %d: %v", i, err)
			}
			tids = append(tids, tid)
		}

		// Wait for every looper to have started at least once, then measure
		// a 16-quantum window.
		spinUntil(t, "all loopers to start", func() bool {
			for _, tid := range tids {
				if n, err := GetQuantums(tid); err != nil || n < 1 {
					return false
				}
			}
			return true
		})

		before := make(map[int]int)
		for _, tid := range append([]int{0}, tids...) {
			n, _ := GetQuantums(tid)
			before[tid] = n
		}
		windowStart := GetTotalQuantums()
		spinUntil(t, "the measurement window to elapse", func() bool {
			return GetTotalQuantums() >= windowStart+16
		})

		// Strict FIFO hands each of the 4 live threads one quantum per
		// rotation, so each gets at least floor(16/4)-1 starts in the window.
		for _, tid := range append([]int{0}, tids...) {
			n, _ := GetQuantums(tid)
			if got := n - before[tid]; got < 3 {
				t.Errorf("tid %d began only %d quanta over a 16-quantum window, want >= 3", tid, got)
			}
		}

		stop = true
		spinUntil(t, "all loopers to terminate", func() bool {
			for _, tid := range tids {
				if _, err := GetQuantums(tid); err == nil {
					return false
				}
			}
			return true
		})
	})

	t.Run("spawn fills the lowest free slot", func(t *testing.T) {
		// Entries spin until terminated externally, so a quantum boundary
		// cannot retire one mid-test and perturb the slot accounting.
		entry := func() {
			for {
				GetTid()
			}
		}
		a, err := Spawn(entry)
		if err != nil {
			t.Fatalf("Spawn a: %v", err)
		}
		b, err := Spawn(entry)
		if err != nil {
			t.Fatalf("Spawn b: %v", err)
		}
		if err := Terminate(a); err != nil {
			t.Fatalf("Terminate(a): %v", err)
		}
		c, err := Spawn(entry)
		if err != nil {
			t.Fatalf("Spawn c: %v", err)
		}
		if c != a {
			t.Fatalf("third spawn returned tid %d, want %d (the freed lowest slot)", c, a)
		}
		for _, tid := range []int{b, c} {
			if err := Terminate(tid); err != nil {
				t.Fatalf("Terminate(%d): %v", tid, err)
			}
		}
	})

	// Last on purpose: the exit ceremony tears the scheduler down, so
	// nothing can run under it afterwards.
	t.Run("terminating tid 0 from a child exits the process", func(t *testing.T) {
		var exitCode int
		exited := make(chan struct{})
		old := osExit
		osExit = func(code int) { exitCode = code; close(exited) }
		t.Cleanup(func() { osExit = old })

		if _, err := Spawn(func() {
			_ = Terminate(0)
		}); err != nil {
			t.Fatalf("Spawn: %v", err)
		}

		deadline := time.Now().Add(10 * time.Second)
		for {
			select {
			case <-exited:
			default:
				GetTid() // keep tid 0 cycling through checkpoints
				if time.Now().Before(deadline) {
					continue
				}
				t.Fatal("process exit was never triggered")
			}
			break
		}

		if exitCode != 0 {
			t.Fatalf("exit code = %d, want 0", exitCode)
		}
	})
}
