package spinlock

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGroup_Basic(t *testing.T) {
	if raceEnabled {
		t.Skip("pb.MapOf uses plain loads the race detector reports")
	}
	g := NewGroup(func(k string) int { return len(k) })
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)

	// Concurrent readers share one lock per key.
	for range n {
		go func() {
			defer wg.Done()
			r, err := g.Read("key")
			if err != nil {
				t.Error(err)
				return
			}
			if r.Get() != 3 {
				t.Errorf("got %d, want 3", r.Get())
			}
			time.Sleep(time.Microsecond)
			r.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, g.Len())
	require.Same(t, g.Get("key"), g.Get("key"))

	// Writer exclusion.
	w, err := g.Write("key")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		r, err := g.Read("key") // Should block
		close(done)
		if err == nil {
			r.Unlock()
		}
	}()

	select {
	case <-done:
		t.Fatal("Read acquired while Write held")
	case <-time.After(10 * time.Millisecond):
	}
	_, err = g.TryRead("key")
	require.ErrorIs(t, err, ErrWouldBlock)
	_, err = g.TryWrite("key")
	require.ErrorIs(t, err, ErrWouldBlock)
	w.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read not acquired after Unlock")
	}
}

func TestGroup_KeysAreIndependent(t *testing.T) {
	var g Group[int, string]
	w, err := g.Write(1)
	require.NoError(t, err)
	w.Set("one")

	r, err := g.TryRead(2)
	require.NoError(t, err)
	require.Equal(t, "", r.Get())
	r.Unlock()
	w.Unlock()

	require.NoError(t, g.View(1, func(v string) error {
		require.Equal(t, "one", v)
		return nil
	}))
	require.Equal(t, 2, g.Len())
}

func TestGroup_Poisoned(t *testing.T) {
	g := NewGroup[string, []int](nil)
	for i := range 4 {
		k := fmt.Sprint(i)
		require.NoError(t, g.Update(k, func(v *[]int) error {
			*v = append(*v, i)
			return nil
		}))
	}
	require.Panics(t, func() {
		_ = g.Update("2", func(v *[]int) error { panic("bad tenant") })
	})
	require.Equal(t, []string{"2"}, g.Poisoned())

	_, err := g.Write("2")
	require.ErrorIs(t, err, ErrPoisoned)

	// A held *SpinLock outlives Delete and keeps its poison.
	l := g.Get("2")
	g.Delete("2")
	require.True(t, l.IsPoisoned())
	require.Empty(t, g.Poisoned())
	require.False(t, g.Get("2").IsPoisoned())
	require.Equal(t, 4, g.Len())
}
