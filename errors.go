package spinlock

import (
	"bytes"
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrWouldBlock is returned by TryRead and TryWrite when the lock is
	// held in a mode incompatible with the request. It only signals
	// contention: the caller may retry, back off or use the blocking call.
	ErrWouldBlock = errors.New("spinlock: try lock would block")

	// ErrPoisoned matches every *PoisonError via errors.Is.
	ErrPoisoned = errors.New("spinlock: poisoned")
)

// PoisonError is returned by every acquisition on a poisoned lock. The
// protected value may have been left half-updated by a writer that exited
// abnormally, and the lock never vouches for it again.
type PoisonError struct {
	cause *panicError
}

func (e *PoisonError) Error() string {
	if e.cause == nil {
		return "spinlock: poisoned: a writer exited abnormally while holding the lock"
	}
	return fmt.Sprintf("spinlock: poisoned: a writer panicked while holding the lock: %v",
		e.cause.value)
}

// Is reports whether target is ErrPoisoned.
func (e *PoisonError) Is(target error) bool {
	return target == ErrPoisoned
}

// Unwrap returns the panic value that poisoned the lock if it is an error.
func (e *PoisonError) Unwrap() error {
	if e.cause == nil {
		return nil
	}
	return e.cause.Unwrap()
}

// Cause returns the value recovered from the panic that first poisoned the
// lock, or nil if the lock was poisoned explicitly or by runtime.Goexit.
func (e *PoisonError) Cause() any {
	if e.cause == nil {
		return nil
	}
	return e.cause.value
}

// Stack returns the stack trace of the panic that first poisoned the lock.
func (e *PoisonError) Stack() []byte {
	if e.cause == nil {
		return nil
	}
	return e.cause.stack
}

// -------------------------
// Panic capture
// -------------------------

// A panicError is an arbitrary value recovered from a panic
// with the stack trace during the execution of a critical section.
type panicError struct {
	value any
	stack []byte
}

// Error implements error interface.
func (p *panicError) Error() string {
	return fmt.Sprintf("%v\n\n%s", p.value, p.stack)
}

// Unwrap returns the underlying error value, if any.
func (p *panicError) Unwrap() error {
	if err, ok := p.value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v any) *panicError {
	stack := debug.Stack()
	// Trim first line "goroutine N [status]:" which can be misleading.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &panicError{value: v, stack: stack}
}
