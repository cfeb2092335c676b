package spinlock

// ReadGuard is a shared hold on a SpinLock, returned by Read and TryRead.
// It must be released exactly once with Unlock and must not be shared
// between goroutines.
type ReadGuard[T any] struct {
	l        *SpinLock[T]
	released bool
}

// Get returns a copy of the protected value.
func (g *ReadGuard[T]) Get() T {
	if g.released {
		panic("spinlock: use of released ReadGuard")
	}
	return g.l.data
}

// Unlock releases the shared hold. It never affects the poison flag.
func (g *ReadGuard[T]) Unlock() {
	if g.released {
		panic("spinlock: Unlock of released ReadGuard")
	}
	g.released = true
	g.l.state.runlock()
}

// WriteGuard is the exclusive hold on a SpinLock, returned by Write and
// TryWrite. It must be released exactly once with Unlock and must not be
// shared between goroutines.
//
// Unlock detects a panicking critical section only when it is deferred
// directly:
//
//	g, err := l.Write()
//	if err != nil {
//		return err
//	}
//	defer g.Unlock()
//
// When Unlock is called any other way, mark a failed section with Poison.
type WriteGuard[T any] struct {
	l        *SpinLock[T]
	failed   bool
	released bool
}

// Get returns a copy of the protected value.
func (g *WriteGuard[T]) Get() T {
	return *g.Ptr()
}

// Set replaces the protected value.
func (g *WriteGuard[T]) Set(v T) {
	*g.Ptr() = v
}

// Ptr returns a pointer to the protected value. It must not be used after
// Unlock.
func (g *WriteGuard[T]) Ptr() *T {
	if g.released {
		panic("spinlock: use of released WriteGuard")
	}
	return &g.l.data
}

// Poison marks the critical section as failed. The lock is poisoned when
// the guard is released.
func (g *WriteGuard[T]) Poison() {
	g.failed = true
}

// Unlock releases the exclusive hold. If the goroutine is panicking, the
// lock is poisoned before the hold is released and the panic continues
// with the same value.
func (g *WriteGuard[T]) Unlock() {
	if g.released {
		panic("spinlock: Unlock of released WriteGuard")
	}
	r := recover()
	g.release(r != nil, r)
	if r != nil {
		panic(r)
	}
}

// release poisons the lock if the section failed, then returns the state
// word to unlocked. Poison must be visible before the word is, so a
// goroutine racing the release observes it once it acquires.
func (g *WriteGuard[T]) release(abnormal bool, r any) {
	if g.released {
		panic("spinlock: Unlock of released WriteGuard")
	}
	g.released = true
	l := g.l
	switch {
	case r != nil:
		l.poison(newPanicError(r))
	case abnormal || g.failed:
		l.poison(nil)
	}
	l.state.unlock()
}
