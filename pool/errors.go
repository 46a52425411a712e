package pool

import (
	"errors"
	"fmt"
)

// ErrTooManyBuckets is returned by New when Config.BucketsCount exceeds
// MaxBuckets.
var ErrTooManyBuckets = errors.New("pool: buckets count exceeds MaxBuckets")

// ErrBackingAllocFailed is returned by New when the fallback allocator
// could not satisfy the request for the contiguous backing buffer.
var ErrBackingAllocFailed = errors.New("pool: fallback allocator failed to reserve the backing buffer")

// assertf panics with a formatted message. It guards preconditions the spec
// documents as caller obligations (bad alignment, an oversized bucket
// count): Go has no separate debug/release build split, so the assertion
// always runs.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

func isPowerOfTwo(v uintptr) bool {
	return v != 0 && v&(v-1) == 0
}
