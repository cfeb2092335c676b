// Package spinlock provides SpinLock, a spin-based reader-writer lock that
// owns the value it protects and poisons it when a writer exits abnormally.
//
// It targets very short critical sections where parking a goroutine costs
// more than spinning for a moment. Waiters never park: they retry a CAS on
// the state word and yield the processor with runtime.Gosched under
// contention.
//
// Usage:
//
//	l := spinlock.New(Config{})
//
//	w, err := l.Write()
//	if err != nil {
//		return err // poisoned
//	}
//	defer w.Unlock()
//	w.Ptr().Limit = 10
//
// Or let the lock run the critical section:
//
//	err := l.Update(func(c *Config) error {
//		c.Limit = 10
//		return nil
//	})
//
// The lock is not re-entrant. A goroutine that asks for an incompatible mode
// while it already holds the lock spins forever.
package spinlock

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	uatomic "go.uber.org/atomic"

	"github.com/llxisdsh/spinlock/internal/opt"
)

// SpinLock is a spin-based reader-writer lock protecting a value of type T.
//
// Properties:
//   - No fairness: a steady stream of readers can starve a writer and vice versa.
//   - Busy-wait (Spinning) with backoff, never parks.
//   - Poisoning: once a writer panics (or calls runtime.Goexit) while holding
//     the lock, every later Read and Write reports a *PoisonError.
//
// A SpinLock must not be copied after first use.
type SpinLock[T any] struct {
	_ noCopy
	lockWords
	_     [lockWordsPad]byte
	data  T
	cause atomic.Pointer[panicError]
}

// lockWords are the words every acquisition touches.
type lockWords struct {
	state    rwState
	poisoned uatomic.Bool
}

// lockWordsPad rounds lockWords up to a cache line when padding is enabled.
const lockWordsPad = opt.Padding_ * ((opt.CacheLineSize_ -
	unsafe.Sizeof(lockWords{})%opt.CacheLineSize_) % opt.CacheLineSize_)

// New returns an unpoisoned lock holding v.
func New[T any](v T) *SpinLock[T] {
	return &SpinLock[T]{data: v}
}

// Read acquires a shared hold, spinning while a writer holds the lock.
// On a poisoned lock it releases the hold again and returns a *PoisonError.
func (l *SpinLock[T]) Read() (*ReadGuard[T], error) {
	l.state.rlock()
	if l.poisoned.Load() {
		l.state.runlock()
		return nil, l.poisonError()
	}
	return &ReadGuard[T]{l: l}, nil
}

// Write acquires the exclusive hold, spinning while anyone holds the lock.
// On a poisoned lock it releases the hold again and returns a *PoisonError.
func (l *SpinLock[T]) Write() (*WriteGuard[T], error) {
	l.state.lock()
	if l.poisoned.Load() {
		l.state.unlock()
		return nil, l.poisonError()
	}
	return &WriteGuard[T]{l: l}, nil
}

// TryRead acquires a shared hold without waiting. It returns ErrWouldBlock
// if a writer holds the lock and a *PoisonError if the lock is poisoned.
func (l *SpinLock[T]) TryRead() (*ReadGuard[T], error) {
	if !l.state.tryRLock() {
		return nil, ErrWouldBlock
	}
	if l.poisoned.Load() {
		l.state.runlock()
		return nil, l.poisonError()
	}
	return &ReadGuard[T]{l: l}, nil
}

// TryWrite acquires the exclusive hold without waiting. It returns
// ErrWouldBlock if the lock is held in any mode and a *PoisonError if the
// lock is poisoned.
func (l *SpinLock[T]) TryWrite() (*WriteGuard[T], error) {
	if !l.state.tryLock() {
		return nil, ErrWouldBlock
	}
	if l.poisoned.Load() {
		l.state.unlock()
		return nil, l.poisonError()
	}
	return &WriteGuard[T]{l: l}, nil
}

// IsPoisoned reports whether a writer ever exited abnormally while holding
// the lock. Once true it stays true.
func (l *SpinLock[T]) IsPoisoned() bool {
	return l.poisoned.Load()
}

// View runs fn with a shared hold on the value and releases it on every
// exit path. A panic in fn propagates but never poisons the lock.
func (l *SpinLock[T]) View(fn func(v T) error) error {
	g, err := l.Read()
	if err != nil {
		return err
	}
	defer g.Unlock()
	return fn(g.l.data)
}

// Update runs fn with the exclusive hold and releases it on every exit path.
// If fn panics or calls runtime.Goexit the lock is poisoned before it is
// released; the panic is then re-raised and Goexit keeps unwinding.
// An error returned by fn is handed back as is and does not poison.
func (l *SpinLock[T]) Update(fn func(v *T) error) (err error) {
	g, err := l.Write()
	if err != nil {
		return err
	}
	normalReturn := false
	defer func() {
		if normalReturn {
			g.release(false, nil)
			return
		}
		// Either a panic, or runtime.Goexit when recover returns nil.
		r := recover()
		g.release(true, r)
		if r != nil {
			panic(r)
		}
	}()
	err = fn(&l.data)
	normalReturn = true
	return err
}

func (l *SpinLock[T]) String() string {
	n, writer := l.state.readers()
	var s string
	switch {
	case writer:
		s = "locked"
	case n > 0:
		s = fmt.Sprintf("readers: %d", n)
	default:
		s = "unlocked"
	}
	if l.poisoned.Load() {
		s += ", poisoned"
	}
	return "SpinLock{" + s + "}"
}

// poison records that the value can no longer be trusted. The first panic
// value is kept for PoisonError.Cause.
func (l *SpinLock[T]) poison(cause *panicError) {
	if cause != nil {
		l.cause.CompareAndSwap(nil, cause)
	}
	l.poisoned.Store(true)
}

func (l *SpinLock[T]) poisonError() error {
	return &PoisonError{cause: l.cause.Load()}
}

// noCopy may be added to structs which must not be copied
// after the first use. See https://golang.org/issues/8005#issuecomment-190753527
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
