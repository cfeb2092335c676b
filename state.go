package spinlock

import (
	"sync/atomic"
)

// rwState is the lock's occupancy word.
//
//	0               unlocked
//	rwWriteMask     held exclusively, no readers
//	n * rwReadUnit  held by n readers
//
// The writer bit and the reader count never coexist. Every transition is a
// CAS against a freshly loaded value, there is no lock guarding the word.
type rwState struct {
	v atomic.Uint32
}

const (
	rwWriteMask  = 1
	rwReadShift  = 1
	rwReadUnit   = 1 << rwReadShift
	rwMaxReaders = 1<<(32-rwReadShift) - 1
)

const errReaderOverflow = "spinlock: too many concurrent readers"

// rlock acquires a shared hold, spinning while a writer holds the word.
func (rw *rwState) rlock() {
	var spins int
	for {
		s := rw.v.Load()
		if s&rwWriteMask == 0 {
			if s>>rwReadShift == rwMaxReaders {
				panic(errReaderOverflow)
			}
			if rw.v.CompareAndSwap(s, s+rwReadUnit) {
				return
			}
			// Lost to another reader, the state is still compatible.
			continue
		}
		delay(&spins)
	}
}

// tryRLock reports whether a shared hold was taken. It only loops while
// losing CAS races to other readers and never waits for a writer.
func (rw *rwState) tryRLock() bool {
	for {
		s := rw.v.Load()
		if s&rwWriteMask != 0 {
			return false
		}
		if s>>rwReadShift == rwMaxReaders {
			panic(errReaderOverflow)
		}
		if rw.v.CompareAndSwap(s, s+rwReadUnit) {
			return true
		}
	}
}

// runlock releases a shared hold. The last reader leaves the word at 0.
func (rw *rwState) runlock() {
	s := rw.v.Add(^uint32(rwReadUnit - 1))
	if old := s + rwReadUnit; old&rwWriteMask != 0 || old < rwReadUnit {
		panic("spinlock: RUnlock of unlocked SpinLock")
	}
}

// lock acquires the exclusive hold, spinning while anyone holds the word.
func (rw *rwState) lock() {
	var spins int
	for {
		if rw.v.Load() == 0 && rw.v.CompareAndSwap(0, rwWriteMask) {
			return
		}
		delay(&spins)
	}
}

//go:nosplit
func (rw *rwState) tryLock() bool {
	return rw.v.Load() == 0 && rw.v.CompareAndSwap(0, rwWriteMask)
}

// unlock releases the exclusive hold.
func (rw *rwState) unlock() {
	if !rw.v.CompareAndSwap(rwWriteMask, 0) {
		panic("spinlock: Unlock of unlocked SpinLock")
	}
}

// readers returns the number of shared holders and whether a writer holds
// the word. For diagnostics only, the answer is stale as soon as it returns.
func (rw *rwState) readers() (n uint32, writer bool) {
	s := rw.v.Load()
	return s >> rwReadShift, s&rwWriteMask != 0
}
