package shmstore

import (
	"errors"
	"fmt"

	"github.com/tcshare/shmstore/internal/deptbl"
	"github.com/tcshare/shmstore/internal/guard"
	"github.com/tcshare/shmstore/internal/hashtbl"
	"github.com/tcshare/shmstore/internal/persist"
	"github.com/tcshare/shmstore/internal/region"
	"github.com/tcshare/shmstore/internal/wait"
)

// Kind is a closed set of distinguishable failure values, the idiomatic
// Go rendering of spec.md §7's error-kind list; callers errors.As into an
// *Error to recover one instead of string-matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindOutOfSharedMemory
	KindFailedAnonymousMemfdInit
	KindLessThanMinimumAvailable
	KindHeapFull
	KindHashTableFull
	KindDepTableFull
	KindWorkerShouldExit
	KindAssertionViolation
	KindWatchdogStuck
	KindUnreachable
)

func (k Kind) String() string {
	switch k {
	case KindOutOfSharedMemory:
		return "out-of-shared-memory"
	case KindFailedAnonymousMemfdInit:
		return "failed-anonymous-memfd-init"
	case KindLessThanMinimumAvailable:
		return "less-than-minimum-available"
	case KindHeapFull:
		return "heap-full"
	case KindHashTableFull:
		return "hash-table-full"
	case KindDepTableFull:
		return "dep-table-full"
	case KindWorkerShouldExit:
		return "worker-should-exit"
	case KindAssertionViolation:
		return "assertion-violation"
	case KindWatchdogStuck:
		return "watchdog-stuck"
	case KindUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Error wraps an underlying package error with the Kind a caller needs to
// branch on, per spec.md §7's "surfaced as distinguishable failure
// values".
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("shmstore: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// classify maps an error returned by one of the internal packages onto
// its spec.md §7 Kind. Unrecognized errors are wrapped as KindUnknown
// rather than dropped, so every non-nil error that passes through
// classify comes back as an *Error. Save, LoadSink and the SinkReader
// methods do not pass their errors through classify.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}

	switch {
	case errors.Is(err, region.ErrOutOfSharedMemory):
		return &Error{Kind: KindOutOfSharedMemory, Err: err}
	case errors.Is(err, region.ErrFailedAnonymousMemfdInit):
		return &Error{Kind: KindFailedAnonymousMemfdInit, Err: err}
	case isLessThanMinimumAvailable(err):
		return &Error{Kind: KindLessThanMinimumAvailable, Err: err}
	case errors.Is(err, hashtbl.ErrHeapFull):
		return &Error{Kind: KindHeapFull, Err: err}
	case errors.Is(err, hashtbl.ErrHashTableFull):
		return &Error{Kind: KindHashTableFull, Err: err}
	case errors.Is(err, deptbl.ErrDepTableFull):
		return &Error{Kind: KindDepTableFull, Err: err}
	case errors.Is(err, guard.ErrWorkerShouldExit):
		return &Error{Kind: KindWorkerShouldExit, Err: err}
	case errors.Is(err, wait.ErrWatchdogStuck):
		return &Error{Kind: KindWatchdogStuck, Err: err}
	case errors.Is(err, persist.ErrUnreachable):
		return &Error{Kind: KindUnreachable, Err: err}
	default:
		var v *guard.Violation
		if errors.As(err, &v) {
			return &Error{Kind: KindAssertionViolation, Err: err}
		}
		return &Error{Kind: KindUnknown, Err: err}
	}
}

func isLessThanMinimumAvailable(err error) bool {
	var e *region.ErrLessThanMinimumAvailable
	return errors.As(err, &e)
}
