package pool

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, bucketsCount int, bucketSizeBytes uintptr) *Allocator {
	t.Helper()
	a, err := New(Config{BucketsCount: bucketsCount, BucketSizeBytes: bucketSizeBytes})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

// Scenario 1: p = alloc(1, 1) -> pool pointer in bucket 0, msize == 16, mbucket == 0.
func TestAllocatorScenario1SmallestRequest(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	p := a.Alloc(nil, 1, 1)
	require.NotNil(t, p)
	require.Equal(t, uintptr(16), a.UsableSize(p))
	require.Equal(t, 0, a.BucketIndex(p))
}

// Scenario 2: p = alloc(48, 16) -> bucket 2 (element_size 48).
func TestAllocatorScenario2MidSizeRequest(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	p := a.Alloc(nil, 48, 16)
	require.NotNil(t, p)
	require.Equal(t, uintptr(48), a.UsableSize(p))
	require.Equal(t, 2, a.BucketIndex(p))
}

// Scenario 3: p = alloc(65, 8) -> foreign (fallback); mbucket == -1.
func TestAllocatorScenario3ForeignRequest(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	p := a.Alloc(nil, 65, 8)
	require.NotNil(t, p)
	require.Equal(t, -1, a.BucketIndex(p))
}

// Scenario 4: p1 = alloc(16,16); free(p1); p2 = alloc(16,16) -> p2 == p1 (LIFO).
func TestAllocatorScenario4LIFOReuse(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	p1 := a.Alloc(nil, 16, 16)
	require.NotNil(t, p1)
	a.Free(nil, p1)
	p2 := a.Alloc(nil, 16, 16)
	require.Equal(t, p1, p2)
}

// Scenario 5: exhaust bucket 1 (4096/32 = 128 allocations of size 32); the
// 129th allocation of size 32 must come from a later bucket or fallback.
func TestAllocatorScenario5OverflowToNextBucket(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	for i := 0; i < 128; i++ {
		p := a.Alloc(nil, 32, 16)
		require.NotNil(t, p)
		require.Equal(t, 1, a.BucketIndex(p))
	}
	p := a.Alloc(nil, 32, 16)
	require.NotNil(t, p)
	if i := a.BucketIndex(p); i >= 0 {
		require.Greater(t, i, 1)
	}
}

// Scenario 6: with a warm thread cache, a free/alloc round trip of the same
// size returns the identical pointer and both operations hit the cache.
func TestAllocatorScenario6ThreadCacheRoundTrip(t *testing.T) {
	stats := NewStats()
	a, err := New(Config{BucketsCount: 4, BucketSizeBytes: 4096, Stats: stats})
	require.NoError(t, err)
	defer a.Close()

	tc := a.NewThreadCache(Warm, 1024)
	defer tc.Close()

	p := a.Alloc(tc, 16, 16)
	require.NotNil(t, p)
	a.Free(tc, p)
	p2 := a.Alloc(tc, 16, 16)
	require.Equal(t, p, p2)

	snap := stats.Snapshot(4)
	require.Greater(t, snap.Buckets[0].CacheHit, uint64(0))
}

func TestAllocatorZeroByteAllocReturnsSentinel(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	p := a.Alloc(nil, 0, 8)
	require.Equal(t, unsafe.Pointer(uintptr(8)), p)
	require.Equal(t, uintptr(0), a.UsableSize(p))
	require.Equal(t, -1, a.BucketIndex(p))
	// Free of the sentinel must be a no-op, not a crash.
	a.Free(nil, p)
}

func TestAllocatorLastBucketBoundary(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	// element_size(buckets_count-1) == 64: served from bucket 3.
	p := a.Alloc(nil, 64, 1)
	require.NotNil(t, p)
	require.Equal(t, 3, a.BucketIndex(p))

	// One byte beyond falls through to fallback.
	p2 := a.Alloc(nil, 65, 1)
	require.NotNil(t, p2)
	require.Equal(t, -1, a.BucketIndex(p2))
}

func TestAllocatorFreeOfNilAndSentinelIsNoop(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	require.NotPanics(t, func() {
		a.Free(nil, nil)
		a.Free(nil, unsafe.Pointer(uintptr(16384)))
	})
}

func TestAllocatorReallocShrinkReturnsSamePointer(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	p := a.Alloc(nil, 48, 16)
	require.NotNil(t, p)
	p2 := a.Realloc(nil, p, 16, 16)
	require.Equal(t, p, p2)
}

func TestAllocatorReallocGrowCopiesAndMoves(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	p := a.Alloc(nil, 16, 16)
	require.NotNil(t, p)
	*(*byte)(p) = 0x42

	p2 := a.Realloc(nil, p, 64, 16)
	require.NotNil(t, p2)
	require.NotEqual(t, p, p2)
	require.Equal(t, byte(0x42), *(*byte)(p2))
	require.Equal(t, 3, a.BucketIndex(p2))
}

func TestAllocatorReallocNilActsAsAlloc(t *testing.T) {
	a := newTestAllocator(t, 4, 4096)
	p := a.Realloc(nil, nil, 16, 16)
	require.NotNil(t, p)
	require.Equal(t, 0, a.BucketIndex(p))
}

func TestAllocatorBucketsCountZeroForwardsEverything(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	defer a.Close()

	p := a.Alloc(nil, 16, 16)
	require.NotNil(t, p)
	require.Equal(t, -1, a.BucketIndex(p))
	a.Free(nil, p)
}
