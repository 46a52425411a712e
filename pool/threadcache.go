package pool

import (
	"unsafe"

	"github.com/mkbeh/smmalloc/fallback"
)

// Warmup controls how much of a freshly created ThreadCache is pre-filled
// from the master buckets before the caller ever asks for a block.
type Warmup uint8

const (
	// Cold performs no pre-population.
	Cold Warmup = iota
	// Warm fills half of each bucket's L1.
	Warm
	// Hot fills L0 fully and all of L1.
	Hot
)

const minL1PerBucket = 4

// tlsBucket is the per-(cache,bucket) POD record. Field order matters: it
// is chosen so the struct is exactly 64 bytes on both 32- and 64-bit
// targets with zero padding (see l0size_64bit.go / l0size_32bit.go for the
// matching l0Max).
type tlsBucket struct {
	bucketData unsafe.Pointer
	bucket     *PoolBucket
	l0         [l0Max]uint32
	nL0        uint32
	l1         unsafe.Pointer
	nL1        uint32
	maxL1      uint32
}

func (tb *tlsBucket) l1At(i int) *uint32 {
	return (*uint32)(unsafe.Add(tb.l1, uintptr(i)*4))
}

// ThreadCache is the two-level per-thread staging area for every bucket an
// Allocator owns. It is not safe for concurrent use: exactly one logical
// thread should hold a given ThreadCache at a time, and only that thread
// should call Close on it (spec.md §5's "destroying a cache from another
// thread is undefined").
type ThreadCache struct {
	tls       []tlsBucket
	l1Storage unsafe.Pointer
	l1Bytes   uintptr
	fb        fallback.Allocator
	stats     *Stats
}

// newThreadCache builds a ThreadCache covering every bucket in buckets,
// carving one contiguous L1 offset array out of a single fallback
// allocation, exactly as spec.md §4.C requires ("one allocation per
// thread").
func newThreadCache(buckets []PoolBucket, fb fallback.Allocator, stats *Stats, warmup Warmup, sizeBytes uintptr) *ThreadCache {
	n := len(buckets)
	perBucket := distributeL1Capacity(n, sizeBytes)

	var totalSlots uint32
	for _, c := range perBucket {
		totalSlots += c
	}

	tc := &ThreadCache{
		tls:   make([]tlsBucket, n),
		fb:    fb,
		stats: stats,
	}
	if totalSlots > 0 {
		tc.l1Bytes = uintptr(totalSlots) * 4
		tc.l1Storage = fb.Alloc(tc.l1Bytes, 4)
	}

	var cursor uintptr
	for i := range tc.tls {
		tb := &tc.tls[i]
		tb.bucketData = buckets[i].data
		tb.bucket = &buckets[i]
		tb.maxL1 = perBucket[i]
		if perBucket[i] > 0 {
			tb.l1 = unsafe.Add(tc.l1Storage, cursor)
			cursor += uintptr(perBucket[i]) * 4
		}

		switch warmup {
		case Warm:
			tb.warmFill(tb.maxL1 / 2)
		case Hot:
			tb.hotFill()
		}
	}
	return tc
}

// distributeL1Capacity computes each bucket's L1 capacity so that
// sum(maxL1[i]*4 bytes) is close to sizeBytes, subject to a minimum floor
// per bucket.
func distributeL1Capacity(bucketsCount int, sizeBytes uintptr) []uint32 {
	out := make([]uint32, bucketsCount)
	if bucketsCount == 0 {
		return out
	}
	totalSlots := uint32(sizeBytes / 4)
	minTotal := uint32(bucketsCount) * minL1PerBucket
	if totalSlots < minTotal {
		totalSlots = minTotal
	}
	per := totalSlots / uint32(bucketsCount)
	remainder := totalSlots % uint32(bucketsCount)
	for i := range out {
		out[i] = per
		if uint32(i) < remainder {
			out[i]++
		}
	}
	return out
}

func (tb *tlsBucket) warmFill(target uint32) {
	if target > tb.maxL1 {
		target = tb.maxL1
	}
	for tb.nL1 < target {
		p := tb.bucket.Alloc()
		if p == nil {
			return
		}
		*tb.l1At(int(tb.nL1)) = uint32(uintptr(p) - uintptr(tb.bucketData))
		tb.nL1++
	}
}

func (tb *tlsBucket) hotFill() {
	for tb.nL0 < l0Max {
		p := tb.bucket.Alloc()
		if p == nil {
			return
		}
		tb.l0[tb.nL0] = uint32(uintptr(p) - uintptr(tb.bucketData))
		tb.nL0++
	}
	tb.warmFill(tb.maxL1)
}

// alloc implements the per-thread fast path: L0 first, then L1, else a
// cache miss (nil) that sends the caller to the master bucket.
func (tc *ThreadCache) alloc(bucket int) unsafe.Pointer {
	tb := &tc.tls[bucket]
	if tb.nL0 > 0 {
		tb.nL0--
		p := unsafe.Add(tb.bucketData, uintptr(tb.l0[tb.nL0]))
		tc.stats.cacheHitInc(bucket)
		return p
	}
	if tb.nL1 > 0 {
		tb.nL1--
		p := unsafe.Add(tb.bucketData, uintptr(*tb.l1At(int(tb.nL1))))
		tc.stats.cacheHitInc(bucket)
		return p
	}
	return nil
}

// free implements the per-thread release path, spilling half of L1 to the
// master bucket when both levels are full.
func (tc *ThreadCache) free(bucket int, p unsafe.Pointer) bool {
	tb := &tc.tls[bucket]
	if tb.maxL1 == 0 {
		return false
	}
	offset := uint32(uintptr(p) - uintptr(tb.bucketData))

	if tb.nL0 < l0Max {
		tb.l0[tb.nL0] = offset
		tb.nL0++
		tc.stats.freedInc(bucket)
		return true
	}
	if tb.nL1 < tb.maxL1 {
		*tb.l1At(int(tb.nL1)) = offset
		tb.nL1++
		tc.stats.freedInc(bucket)
		return true
	}

	tb.returnL1ToMaster(tb.maxL1 / 2)
	*tb.l1At(int(tb.nL1)) = offset
	tb.nL1++
	tc.stats.freedInc(bucket)
	return true
}

// returnL1ToMaster spills the last min(count, nL1) entries of L1 back to
// the owning bucket as a single pre-linked chain.
func (tb *tlsBucket) returnL1ToMaster(count uint32) {
	if count > tb.nL1 {
		count = tb.nL1
	}
	if count == 0 {
		return
	}
	start := tb.nL1 - count
	var localTag uint32
	for j := start; j < tb.nL1-1; j++ {
		off := *tb.l1At(int(j))
		next := *tb.l1At(int(j + 1))
		storeLink(unsafe.Add(tb.bucketData, uintptr(off)), packTagged(localTag, next))
		localTag++
	}
	head := unsafe.Add(tb.bucketData, uintptr(*tb.l1At(int(start))))
	tail := unsafe.Add(tb.bucketData, uintptr(*tb.l1At(int(tb.nL1-1))))
	tb.bucket.FreeInterval(head, tail)
	tb.nL1 -= count
}

// drain spills every block held in L0 and L1 back to the master bucket as
// one chain, L1's entries followed by L0's, built in a separate slice so L1
// needs no spare room for L0's entries.
func (tb *tlsBucket) drain() {
	total := tb.nL0 + tb.nL1
	if total == 0 {
		return
	}
	offsets := make([]uint32, 0, total)
	for j := uint32(0); j < tb.nL1; j++ {
		offsets = append(offsets, *tb.l1At(int(j)))
	}
	for j := uint32(0); j < tb.nL0; j++ {
		offsets = append(offsets, tb.l0[j])
	}

	var localTag uint32
	for j := 0; j < len(offsets)-1; j++ {
		storeLink(unsafe.Add(tb.bucketData, uintptr(offsets[j])), packTagged(localTag, offsets[j+1]))
		localTag++
	}
	head := unsafe.Add(tb.bucketData, uintptr(offsets[0]))
	tail := unsafe.Add(tb.bucketData, uintptr(offsets[len(offsets)-1]))
	tb.bucket.FreeInterval(head, tail)

	tb.nL0 = 0
	tb.nL1 = 0
}

// Close returns every cached block to its master bucket and releases the
// L1 backing array through the fallback allocator. Calling Close from a
// different logical thread than the one that created the cache, or using
// the cache afterward, is undefined.
func (tc *ThreadCache) Close() {
	for i := range tc.tls {
		tc.tls[i].drain()
	}
	if tc.l1Storage != nil {
		tc.fb.Free(tc.l1Storage)
		tc.l1Storage = nil
	}
	tc.tls = nil
}
