// Package pool implements smmalloc's core: a fixed set of segregated
// lock-free free-list buckets carved out of one contiguous backing buffer,
// and a two-level per-thread cache that absorbs contention-free traffic in
// front of them.
package pool

// Size class granularity, in bytes. Bucket i holds blocks of exactly
// (i+1)*Granularity bytes.
const Granularity = 16

// MaxBuckets is the largest bucket count an Allocator will accept.
const MaxBuckets = 64

// MaxAlignment is the largest alignment Alloc/Realloc will honor. Alloc
// panics when asked for a larger one.
const MaxAlignment = 16384
