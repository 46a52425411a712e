package pool

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestThreadCacheColdStartsEmpty(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	tc := a.NewThreadCache(Cold, 1024)
	defer tc.Close()

	require.Equal(t, uint32(0), tc.tls[0].nL0)
	require.Equal(t, uint32(0), tc.tls[0].nL1)
}

func TestThreadCacheWarmFillsHalfOfL1(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	tc := a.NewThreadCache(Warm, 1024)
	defer tc.Close()

	tb := &tc.tls[0]
	require.Equal(t, uint32(0), tb.nL0)
	require.Equal(t, tb.maxL1/2, tb.nL1)
}

func TestThreadCacheHotFillsL0AndL1(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	tc := a.NewThreadCache(Hot, 1024)
	defer tc.Close()

	tb := &tc.tls[0]
	require.Equal(t, uint32(l0Max), tb.nL0)
	require.Equal(t, tb.maxL1, tb.nL1)
}

func TestThreadCacheAllocPrefersL0ThenL1(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	tc := a.NewThreadCache(Hot, 1024)
	defer tc.Close()

	tb := &tc.tls[0]
	startL0, startL1 := tb.nL0, tb.nL1

	p := tc.alloc(0)
	require.NotNil(t, p)
	require.Equal(t, startL0-1, tb.nL0)
	require.Equal(t, startL1, tb.nL1)

	for tb.nL0 > 0 {
		require.NotNil(t, tc.alloc(0))
	}
	require.Equal(t, uint32(0), tb.nL0)
	before := tb.nL1
	p2 := tc.alloc(0)
	require.NotNil(t, p2)
	require.Equal(t, before-1, tb.nL1)
}

func TestThreadCacheFreeSpillsHalfOfL1WhenFull(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	tc := a.NewThreadCache(Cold, 16) // below the floor: maxL1 clamps to minL1PerBucket per bucket
	defer tc.Close()

	tb := &tc.tls[0]
	require.Greater(t, tb.maxL1, uint32(0))

	// Fill L0 completely, then push enough extra frees to force L1 to fill
	// and then overflow, exercising the spill path.
	var blocks []unsafe.Pointer
	for i := 0; i < int(l0Max)+int(tb.maxL1)+2; i++ {
		p := a.buckets[0].Alloc()
		require.NotNil(t, p)
		blocks = append(blocks, p)
	}
	for _, b := range blocks {
		ok := tc.free(0, b)
		require.True(t, ok)
	}
	require.LessOrEqual(t, tb.nL0, uint32(l0Max))
	require.LessOrEqual(t, tb.nL1, tb.maxL1)
}

func TestThreadCacheCloseDrainsEverythingBackToMaster(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	before := a.buckets[0].freeCount()

	tc := a.NewThreadCache(Hot, 1024)
	afterWarm := a.buckets[0].freeCount()
	require.Less(t, afterWarm, before)

	tc.Close()
	require.Equal(t, before, a.buckets[0].freeCount())
}

func TestThreadCacheFreeWithoutCacheReturnsFalse(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	tc := a.NewThreadCache(Cold, 0)
	defer tc.Close()

	p := a.buckets[0].Alloc()
	require.NotNil(t, p)
	require.False(t, tc.free(0, p))
	a.buckets[0].FreeInterval(p, p)
}
