//go:build linux || darwin

package uthreads

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// preemptionTimer drives quantum boundaries off ITIMER_VIRTUAL: on-CPU
// time only, so a thread parked on the library itself never burns its
// neighbors' quanta. One SIGVTALRM is expected per quantumUsecs,
// delivered to sigCh by the runtime's os/signal machinery and drained by a
// single monitor goroutine — there is no handler "context" to reason about
// the way there is for a real signal handler, so the monitor only wakes due
// sleepers and flags that a boundary is due; the thread actually owning the
// CPU right now is the one that processes it, at its next checkpoint (see
// scheduler.go's checkpoint/onTick).
type preemptionTimer struct {
	sigCh chan os.Signal
	stop  chan struct{}
	armed bool
}

// arm installs the SIGVTALRM handler and starts the interval timer at
// quantumUsecs, using the same period for the initial delay and the
// repeating interval. onTick is invoked once per signal, from a dedicated
// goroutine — never concurrently.
func (p *preemptionTimer) arm(quantumUsecs int, onTick func()) error {
	p.sigCh = make(chan os.Signal, 1)
	p.stop = make(chan struct{})
	signal.Notify(p.sigCh, syscall.SIGVTALRM)

	interval := unix.Timeval{
		Sec:  int64(quantumUsecs / 1_000_000),
		Usec: int64(quantumUsecs % 1_000_000),
	}
	it := unix.Itimerval{Value: interval, Interval: interval}
	if _, err := unix.Setitimer(unix.ITIMER_VIRTUAL, it); err != nil {
		signal.Stop(p.sigCh)
		return fmt.Errorf("setitimer: %w", err)
	}
	p.armed = true

	go func() {
		for {
			select {
			case <-p.sigCh:
				onTick()
			case <-p.stop:
				return
			}
		}
	}()
	return nil
}

// disarm stops the interval timer and the monitor goroutine. Safe to call
// on a timer that was never armed.
func (p *preemptionTimer) disarm() error {
	if !p.armed {
		return nil
	}
	p.armed = false
	zero := unix.Itimerval{}
	_, err := unix.Setitimer(unix.ITIMER_VIRTUAL, zero)
	signal.Stop(p.sigCh)
	close(p.stop)
	if err != nil {
		return fmt.Errorf("setitimer disarm: %w", err)
	}
	return nil
}
