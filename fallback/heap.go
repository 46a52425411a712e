package fallback

import (
	"sync"
	"unsafe"
)

// Heap is a portable fallback.Allocator with no build constraints: it backs
// every allocation with a pinned Go byte slice, the same trick ChunkGen.Gen
// uses to reinterpret &g.CurSlab[0] as a raw pointer, except the slice here
// comes from the Go heap rather than an mmap slab. The live map keeps every
// outstanding slice reachable so the garbage collector never reclaims
// memory the allocator has not yet freed.
type Heap struct {
	mu   sync.Mutex
	live map[uintptr]heapRegion
}

type heapRegion struct {
	buf     []byte
	usedLen uintptr
}

// NewHeap builds a Go-heap-backed fallback allocator, suitable on every
// platform including ones without unix.Mmap.
func NewHeap() *Heap {
	return &Heap{live: make(map[uintptr]heapRegion)}
}

// Alloc satisfies fallback.Allocator.
func (h *Heap) Alloc(size, alignment uintptr) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	if alignment == 0 {
		alignment = 1
	}
	buf := make([]byte, size+alignment)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + alignment - 1) &^ (alignment - 1)

	h.mu.Lock()
	h.live[aligned] = heapRegion{buf: buf, usedLen: size}
	h.mu.Unlock()
	return unsafe.Pointer(aligned)
}

// Free satisfies fallback.Allocator.
func (h *Heap) Free(p unsafe.Pointer) {
	h.mu.Lock()
	delete(h.live, uintptr(p))
	h.mu.Unlock()
}

// Realloc satisfies fallback.Allocator.
func (h *Heap) Realloc(p unsafe.Pointer, size, alignment uintptr) unsafe.Pointer {
	h.mu.Lock()
	r, ok := h.live[uintptr(p)]
	h.mu.Unlock()
	if !ok {
		return h.Alloc(size, alignment)
	}
	room := uintptr(len(r.buf)) - (uintptr(p) - uintptr(unsafe.Pointer(&r.buf[0])))
	if size <= room {
		h.mu.Lock()
		r.usedLen = size
		h.live[uintptr(p)] = r
		h.mu.Unlock()
		return p
	}

	np := h.Alloc(size, alignment)
	if np == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(np), size), unsafe.Slice((*byte)(p), r.usedLen))
	h.Free(p)
	return np
}

// UsableSize satisfies fallback.Allocator.
func (h *Heap) UsableSize(p unsafe.Pointer) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.live[uintptr(p)]
	if !ok {
		return 0
	}
	return r.usedLen
}
