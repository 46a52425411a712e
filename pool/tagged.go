package pool

import "math"

// taggedIndex packs a bucket free-list head: the low 32 bits are the byte
// offset of the head block from the bucket's data start, the high 32 bits
// are a monotonic tag that changes on every push. This is the ABA guard: a
// pop's CAS only succeeds against the exact (tag, offset) pair it observed,
// so a head that cycles back to the same offset after an intervening push
// still fails the CAS because the tag moved on.
type taggedIndex uint64

// emptyHead is the sentinel meaning "no free blocks."
const emptyHead taggedIndex = math.MaxUint64

func packTagged(tag uint32, offset uint32) taggedIndex {
	return taggedIndex(uint64(tag)<<32 | uint64(offset))
}

func (t taggedIndex) offset() uint32 {
	return uint32(t)
}

func (t taggedIndex) tag() uint32 {
	return uint32(t >> 32)
}
