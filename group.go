package spinlock

import (
	"github.com/llxisdsh/pb"
)

// Group is a keyed set of SpinLocks, created on first use.
//
// Usage:
//
//	g := spinlock.NewGroup(func(name string) Quota { return defaultQuota })
//
//	err := g.Update("tenant-a", func(q *Quota) error {
//		q.Used++
//		return nil
//	})
//
// Locks stay in the group until Delete, so a poisoned key keeps reporting
// its poison. Delete only forgets the lock; holders of the old *SpinLock
// keep using it.
//
// The backing pb.MapOf reads its buckets with plain loads on some
// architectures, so concurrent use of a Group is not clean under the race
// detector.
type Group[K comparable, T any] struct {
	_    noCopy
	init func(K) T
	m    pb.MapOf[K, *SpinLock[T]]
}

// NewGroup returns a Group whose locks start out holding init(key).
// A nil init starts every lock at the zero value, as does a zero Group.
func NewGroup[K comparable, T any](init func(K) T) *Group[K, T] {
	return &Group[K, T]{init: init}
}

// Get returns the lock for k, creating it if needed.
func (g *Group[K, T]) Get(k K) *SpinLock[T] {
	if l, ok := g.m.Load(k); ok {
		return l
	}
	l, _ := g.m.ProcessEntry(
		k,
		func(e *pb.EntryOf[K, *SpinLock[T]]) (*pb.EntryOf[K, *SpinLock[T]], *SpinLock[T], bool) {
			if e != nil {
				return e, e.Value, true
			}
			var v T
			if g.init != nil {
				v = g.init(k)
			}
			l := New(v)
			return &pb.EntryOf[K, *SpinLock[T]]{Value: l}, l, false
		},
	)
	return l
}

// Read is shorthand for g.Get(k).Read().
func (g *Group[K, T]) Read(k K) (*ReadGuard[T], error) {
	return g.Get(k).Read()
}

// Write is shorthand for g.Get(k).Write().
func (g *Group[K, T]) Write(k K) (*WriteGuard[T], error) {
	return g.Get(k).Write()
}

// TryRead is shorthand for g.Get(k).TryRead().
func (g *Group[K, T]) TryRead(k K) (*ReadGuard[T], error) {
	return g.Get(k).TryRead()
}

// TryWrite is shorthand for g.Get(k).TryWrite().
func (g *Group[K, T]) TryWrite(k K) (*WriteGuard[T], error) {
	return g.Get(k).TryWrite()
}

// View is shorthand for g.Get(k).View(fn).
func (g *Group[K, T]) View(k K, fn func(v T) error) error {
	return g.Get(k).View(fn)
}

// Update is shorthand for g.Get(k).Update(fn).
func (g *Group[K, T]) Update(k K, fn func(v *T) error) error {
	return g.Get(k).Update(fn)
}

// Poisoned returns the keys whose lock is poisoned, in no particular order.
func (g *Group[K, T]) Poisoned() []K {
	var keys []K
	g.m.Range(func(k K, l *SpinLock[T]) bool {
		if l.IsPoisoned() {
			keys = append(keys, k)
		}
		return true
	})
	return keys
}

// Delete forgets the lock for k.
func (g *Group[K, T]) Delete(k K) {
	g.m.Delete(k)
}

// Len returns the number of locks in the group.
func (g *Group[K, T]) Len() int {
	n := 0
	g.m.Range(func(K, *SpinLock[T]) bool {
		n++
		return true
	})
	return n
}
