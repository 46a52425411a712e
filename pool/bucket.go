package pool

import (
	"sync/atomic"
	"unsafe"
)

// PoolBucket is a single size class's lock-free LIFO free list, threaded
// through the blocks themselves: a free block's first 8 bytes hold the
// tagged index of the next free block, so the list carries zero external
// metadata. The CAS-loop shape below follows the pack's own
// sequence-CAS lock-free structures (a Vyukov-style ring buffer built on
// atomic.Uint64.CompareAndSwap with padded hot fields) generalized from a
// bounded ring to a LIFO stack.
type PoolBucket struct {
	data     unsafe.Pointer
	end      unsafe.Pointer
	elemSize uintptr
	capacity uint32

	_ [40]byte // pad head/globalTag onto their own cache line

	head      atomic.Uint64
	globalTag atomic.Uint32
}

func (b *PoolBucket) init(data unsafe.Pointer, elemSize uintptr, capacity uint32) {
	b.data = data
	b.elemSize = elemSize
	b.capacity = capacity
	b.end = unsafe.Add(data, uintptr(capacity)*elemSize)

	for k := uint32(0); k < capacity; k++ {
		blockPtr := b.blockAt(k * uint32(elemSize))
		var next taggedIndex
		if k+1 == capacity {
			next = emptyHead
		} else {
			next = packTagged(k, (k+1)*uint32(elemSize))
		}
		storeLink(blockPtr, next)
	}
	if capacity == 0 {
		b.head.Store(uint64(emptyHead))
	} else {
		b.head.Store(uint64(packTagged(0, 0)))
	}
	b.globalTag.Store(capacity)
}

func (b *PoolBucket) blockAt(offset uint32) unsafe.Pointer {
	return unsafe.Add(b.data, uintptr(offset))
}

func loadLink(p unsafe.Pointer) taggedIndex {
	return taggedIndex(atomic.LoadUint64((*uint64)(p)))
}

func storeLink(p unsafe.Pointer, v taggedIndex) {
	atomic.StoreUint64((*uint64)(p), uint64(v))
}

// Alloc pops the head block, or returns nil if the free list is empty.
func (b *PoolBucket) Alloc() unsafe.Pointer {
	for {
		old := taggedIndex(b.head.Load())
		if old == emptyHead {
			return nil
		}
		blockPtr := b.blockAt(old.offset())
		next := loadLink(blockPtr)
		if b.head.CompareAndSwap(uint64(old), uint64(next)) {
			return blockPtr
		}
	}
}

// FreeInterval pushes a pre-linked chain [headPtr ... tailPtr] onto the
// free list in one CAS. The caller guarantees the chain's internal links
// are already written; tailPtr's link slot is overwritten here to splice
// it onto whatever the bucket's current head is.
func (b *PoolBucket) FreeInterval(headPtr, tailPtr unsafe.Pointer) {
	headOffset := uint32(uintptr(headPtr) - uintptr(b.data))
	for {
		cur := taggedIndex(b.head.Load())
		storeLink(tailPtr, cur)
		tag := b.globalTag.Add(1)
		newHead := packTagged(tag, headOffset)
		if b.head.CompareAndSwap(uint64(cur), uint64(newHead)) {
			return
		}
	}
}

// Contains reports whether p falls within this bucket's block region.
func (b *PoolBucket) Contains(p unsafe.Pointer) bool {
	return uintptr(p) >= uintptr(b.data) && uintptr(p) < uintptr(b.end)
}

// ElementSize is the fixed block size this bucket serves.
func (b *PoolBucket) ElementSize() uintptr {
	return b.elemSize
}

// Capacity is the number of blocks this bucket was initialized with.
func (b *PoolBucket) Capacity() uint32 {
	return b.capacity
}

// freeCount walks the free list and counts its length. It is O(capacity)
// and exists only for tests that check quiescent invariants (P6/P7), never
// on a hot path.
func (b *PoolBucket) freeCount() int {
	n := 0
	cur := taggedIndex(b.head.Load())
	for cur != emptyHead {
		n++
		cur = loadLink(b.blockAt(cur.offset()))
	}
	return n
}
