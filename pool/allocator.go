package pool

import (
	"unsafe"

	"github.com/mkbeh/smmalloc/fallback"
)

// Config configures a single Allocator. BucketsCount and BucketSizeBytes
// are validated at New: BucketsCount must not exceed MaxBuckets, and
// BucketSizeBytes is rounded up so every bucket region is cache-line
// aligned and the largest block size divides it evenly.
type Config struct {
	BucketsCount    int
	BucketSizeBytes uintptr

	// Fallback services everything outside the pool regime. If nil,
	// fallback.NewHeap() is used.
	Fallback fallback.Allocator

	// Stats is optional; nil disables counters entirely.
	Stats *Stats
}

// Allocator is the process-wide facade: it owns the contiguous backing
// buffer, routes requests to the right bucket, and falls through to the
// injected fallback allocator once a request leaves the pool regime.
type Allocator struct {
	fb              fallback.Allocator
	bucketsCount    int
	bucketSizeBytes uintptr

	buffer      unsafe.Pointer
	bufferEnd   unsafe.Pointer
	bucketBegin []unsafe.Pointer
	buckets     []PoolBucket

	stats *Stats
}

// New builds an Allocator per cfg. A zero BucketsCount is legal: every
// request is then forwarded straight to the fallback allocator, matching
// spec.md §4.A's "buckets_count == 0" case.
func New(cfg Config) (*Allocator, error) {
	assertf(cfg.BucketsCount >= 0 && cfg.BucketsCount <= MaxBuckets,
		"pool: buckets count %d exceeds MaxBuckets", cfg.BucketsCount)

	fb := cfg.Fallback
	if fb == nil {
		fb = fallback.NewHeap()
	}

	a := &Allocator{fb: fb, bucketsCount: cfg.BucketsCount, stats: cfg.Stats}
	if cfg.BucketsCount == 0 {
		return a, nil
	}

	largest := elementSize(cfg.BucketsCount - 1)
	bucketSize := alignBucketSize(cfg.BucketSizeBytes, largest)
	total := bucketSize * uintptr(cfg.BucketsCount)

	buf := fb.Alloc(total, 64)
	if buf == nil {
		return nil, ErrBackingAllocFailed
	}

	a.bucketSizeBytes = bucketSize
	a.buffer = buf
	a.bufferEnd = unsafe.Add(buf, total)
	a.buckets = make([]PoolBucket, cfg.BucketsCount)
	a.bucketBegin = make([]unsafe.Pointer, cfg.BucketsCount)

	for i := 0; i < cfg.BucketsCount; i++ {
		begin := unsafe.Add(buf, uintptr(i)*bucketSize)
		a.bucketBegin[i] = begin
		elem := elementSize(i)
		capacity := uint32(bucketSize / elem)
		a.buckets[i].init(begin, elem, capacity)
	}
	return a, nil
}

func elementSize(bucketIndex int) uintptr {
	return uintptr(Granularity) * uintptr(bucketIndex+1)
}

func alignBucketSize(requested, largestElem uintptr) uintptr {
	if requested == 0 {
		requested = largestElem
	}
	m := lcm(64, largestElem)
	return ((requested + m - 1) / m) * m
}

func gcd(a, b uintptr) uintptr {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b uintptr) uintptr {
	return a / gcd(a, b) * b
}

// NewThreadCache builds a per-thread cache in front of this Allocator's
// buckets. The caller owns the returned handle exclusively; see
// ThreadCache's doc comment.
func (a *Allocator) NewThreadCache(warmup Warmup, sizeBytes uintptr) *ThreadCache {
	return newThreadCache(a.buckets, a.fb, a.stats, warmup, sizeBytes)
}

// Alloc serves bytes aligned to alignment. tc may be nil, in which case
// the master buckets (and ultimately the fallback allocator) are used
// directly. A zero-byte request returns the sentinel pointer described in
// spec.md §4.E; a failed fallback allocation returns nil.
func (a *Allocator) Alloc(tc *ThreadCache, bytes, alignment uintptr) unsafe.Pointer {
	if alignment == 0 {
		alignment = 1
	}
	assertf(isPowerOfTwo(alignment), "pool: alignment %d is not a power of two", alignment)
	assertf(alignment <= MaxAlignment, "pool: alignment %d exceeds MaxAlignment", alignment)

	if bytes == 0 {
		return unsafe.Pointer(alignment)
	}

	effective := bytes
	if alignment > effective {
		effective = alignment
	}

	if i := int((effective - 1) >> 4); i < a.bucketsCount {
		if tc != nil {
			if p := tc.alloc(i); p != nil {
				return p
			}
		}
		for j := i; j < a.bucketsCount; j++ {
			if p := a.buckets[j].Alloc(); p != nil {
				a.stats.masterHitInc(j)
				return p
			}
			a.stats.masterMissInc(j)
		}
	}

	a.stats.globalMissInc()
	return a.fb.Alloc(bytes, alignment)
}

// Free releases p. Sentinel and nil pointers (numeric value <= MaxAlignment)
// are a no-op, matching spec.md §4.E.
func (a *Allocator) Free(tc *ThreadCache, p unsafe.Pointer) {
	if uintptr(p) <= MaxAlignment {
		return
	}
	if i := a.BucketIndex(p); i >= 0 {
		if tc != nil && tc.free(i, p) {
			return
		}
		a.buckets[i].FreeInterval(p, p)
		return
	}
	a.fb.Free(p)
}

// Realloc implements spec.md §4.D's shrink/grow/foreign-pointer cases.
func (a *Allocator) Realloc(tc *ThreadCache, p unsafe.Pointer, bytes, alignment uintptr) unsafe.Pointer {
	if p == nil {
		return a.Alloc(tc, bytes, alignment)
	}

	if i := a.BucketIndex(p); i >= 0 {
		elem := a.buckets[i].ElementSize()
		if bytes <= elem {
			// Shrink in place by discarding: the original pointer is
			// released and the same value is returned. Documented caller
			// obligation, not thread-safe per pointer — see DESIGN.md.
			a.Free(tc, p)
			return p
		}
		np := a.Alloc(tc, bytes, alignment)
		if np == nil {
			return nil
		}
		copyBytes(np, p, elem)
		a.Free(tc, p)
		return np
	}

	// Foreign pointer.
	if bytes == 0 {
		a.fb.Free(p)
		if alignment == 0 {
			alignment = 1
		}
		return unsafe.Pointer(alignment)
	}
	if uintptr(p) <= MaxAlignment {
		return a.Alloc(tc, bytes, alignment)
	}
	return a.fb.Realloc(p, bytes, alignment)
}

func copyBytes(dst, src unsafe.Pointer, n uintptr) {
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}

// UsableSize reports how many bytes are usable at p: the bucket's element
// size for pool pointers, the fallback's own accounting for foreign ones,
// zero for sentinel/nil pointers.
func (a *Allocator) UsableSize(p unsafe.Pointer) uintptr {
	if uintptr(p) <= MaxAlignment {
		return 0
	}
	if i := a.BucketIndex(p); i >= 0 {
		return a.buckets[i].ElementSize()
	}
	return a.fb.UsableSize(p)
}

// BucketIndex returns the owning bucket index for a pool pointer, or -1
// for a foreign or sentinel pointer.
func (a *Allocator) BucketIndex(p unsafe.Pointer) int {
	if a.bucketsCount == 0 || uintptr(p) < uintptr(a.buffer) || uintptr(p) >= uintptr(a.bufferEnd) {
		return -1
	}
	i := int((uintptr(p) - uintptr(a.bucketBegin[0])) / a.bucketSizeBytes)
	if i < a.bucketsCount && a.buckets[i].Contains(p) {
		return i
	}
	return -1
}

// Close releases the backing buffer through the fallback allocator. Any
// ThreadCache created against this Allocator must be closed first.
func (a *Allocator) Close() {
	if a.buffer != nil {
		a.fb.Free(a.buffer)
		a.buffer = nil
	}
}
