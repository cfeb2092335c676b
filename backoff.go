package spinlock

import (
	"runtime"
	_ "unsafe" // for linkname
)

const (
	// activeSpins matches the runtime's active_spin: runtime_canSpin
	// refuses from this many rounds on.
	activeSpins = 4
	// maxYieldShift caps a single delay at 1<<maxYieldShift yields.
	maxYieldShift = 4
)

func trySpin(spins *int) bool {
	if runtime_canSpin(*spins) {
		*spins++
		runtime_doSpin()
		return true
	}
	return false
}

// delay backs off a spin loop after a failed attempt. It spins with the
// runtime's procyield while spinning can make progress, then yields with
// runtime.Gosched an exponentially growing number of times. It never
// sleeps or parks the goroutine.
func delay(spins *int) {
	if trySpin(spins) {
		return
	}
	n := *spins
	if n < activeSpins+maxYieldShift {
		*spins = n + 1
	}
	for range 1 << min(max(n-activeSpins, 0), maxYieldShift) {
		runtime.Gosched()
	}
}

// nolint:all
//
//go:linkname runtime_canSpin sync.runtime_canSpin
//goland:noinspection ALL
func runtime_canSpin(i int) bool

// nolint:all
//
//go:linkname runtime_doSpin sync.runtime_doSpin
//goland:noinspection ALL
func runtime_doSpin()
