// Package fallback provides the generic system allocator that smmalloc
// forwards to once a request leaves the pool regime: sizes beyond the
// largest bucket, requests made before any bucket exists, or buckets that
// are simply out of blocks.
package fallback

import "unsafe"

// Allocator is the collaborator contract every pool.Allocator is built
// against. Implementations own memory outside the Go GC's normal reach and
// must keep whatever they hand out alive until Free or Realloc releases it.
type Allocator interface {
	// Alloc returns size bytes aligned to alignment, or nil on failure.
	// alignment is always a power of two no larger than pool.MaxAlignment.
	Alloc(size, alignment uintptr) unsafe.Pointer

	// Free releases a pointer previously returned by Alloc or Realloc.
	// p is never nil.
	Free(p unsafe.Pointer)

	// Realloc resizes p to size bytes, preserving alignment, and returns
	// the (possibly new) pointer. p is never nil.
	Realloc(p unsafe.Pointer, size, alignment uintptr) unsafe.Pointer

	// UsableSize reports how many bytes are actually available at p.
	UsableSize(p unsafe.Pointer) uintptr
}
