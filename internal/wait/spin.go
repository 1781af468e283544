// Package wait implements the one blocking point the store's lock-free
// protocols ever use: a watchdog-bounded busy-wait on a shared-memory word.
package wait

import (
	"context"
	"errors"
	"runtime"
	"time"
)

// ErrWatchdogStuck is returned when a busy-wait exceeds its deadline
// without its condition becoming true. A worker dying between publishing
// the WRITE_IN_PROGRESS sentinel and publishing the real pointer is the
// one way this fires in the content table; it is treated as fatal by
// every caller, per spec.
var ErrWatchdogStuck = errors.New("wait: watchdog-stuck")

// spinBudget is how many tight-loop iterations SpinUntil tries before
// backing off to sleeping between checks, so that a short wait stays
// cheap (no syscalls) while a long one doesn't pin a CPU.
const spinBudget = 2000

// SpinUntil polls check until it returns true, the context is canceled, or
// watchdog elapses. Go has no portable way to emit a hardware PAUSE/YIELD
// hint without assembly (and the teacher's shm_futex_linux.go reaches
// for a real futex syscall rather than a spin hint for exactly that
// reason); runtime.Gosched is the idiomatic
// stdlib-only stand-in during the initial tight-loop phase.
func SpinUntil(ctx context.Context, check func() bool, watchdog time.Duration) error {
	if check() {
		return nil
	}
	deadline := time.Now().Add(watchdog)
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if i < spinBudget {
			runtime.Gosched()
		} else {
			time.Sleep(time.Millisecond)
		}
		if check() {
			return nil
		}
		if time.Now().After(deadline) {
			if check() {
				return nil
			}
			return ErrWatchdogStuck
		}
	}
}
