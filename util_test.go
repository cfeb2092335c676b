package spinlock

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/llxisdsh/spinlock/internal/opt"
)

const raceEnabled = opt.Race_

func TestSpinLock_Layout(t *testing.T) {
	var l SpinLock[uint64]
	off := unsafe.Offsetof(l.data)
	if opt.Padding_ == 0 {
		require.Equal(t, unsafe.Sizeof(lockWords{}), off)
		return
	}
	require.Zero(t, off%opt.CacheLineSize_, "value shares a cache line with the state word")
}
