//go:build unix

package fallback

import (
	"log"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const pageSize = 4096

// Mmap is a fallback.Allocator that carves every allocation out of its own
// anonymous, page-aligned unix.Mmap region, exactly the way the teacher's
// ChunkGen backs its slabs. Live regions are tracked in a mutex-guarded map
// keyed by the pointer handed to the caller, the same locking discipline
// alloc2.Simple uses around its own free-chunk list.
type Mmap struct {
	mu      sync.Mutex
	regions map[uintptr]mmapRegion
}

type mmapRegion struct {
	base    unsafe.Pointer
	mapLen  uintptr
	usedLen uintptr
}

// NewMmap builds an unix.Mmap-backed fallback allocator.
func NewMmap() *Mmap {
	return &Mmap{regions: make(map[uintptr]mmapRegion)}
}

func roundUp(n, mult uintptr) uintptr {
	return (n + mult - 1) &^ (mult - 1)
}

// Alloc satisfies fallback.Allocator.
func (m *Mmap) Alloc(size, alignment uintptr) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	if alignment < pageSize {
		alignment = pageSize
	}
	mapLen := roundUp(size+alignment, pageSize)
	b, err := unix.Mmap(-1, 0, int(mapLen), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		log.Printf("fallback: mmap %d bytes failed: %v", mapLen, err)
		return nil
	}
	base := unsafe.Pointer(&b[0])
	aligned := roundUp(uintptr(base), alignment)

	m.mu.Lock()
	m.regions[aligned] = mmapRegion{base: base, mapLen: mapLen, usedLen: size}
	m.mu.Unlock()
	return unsafe.Pointer(aligned)
}

// Free satisfies fallback.Allocator.
func (m *Mmap) Free(p unsafe.Pointer) {
	m.mu.Lock()
	r, ok := m.regions[uintptr(p)]
	if ok {
		delete(m.regions, uintptr(p))
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	b := unsafe.Slice((*byte)(r.base), r.mapLen)
	if err := unix.Munmap(b); err != nil {
		log.Printf("fallback: munmap failed: %v", err)
	}
}

// Realloc satisfies fallback.Allocator.
func (m *Mmap) Realloc(p unsafe.Pointer, size, alignment uintptr) unsafe.Pointer {
	m.mu.Lock()
	r, ok := m.regions[uintptr(p)]
	m.mu.Unlock()
	if !ok {
		return m.Alloc(size, alignment)
	}
	if room := r.mapLen - (uintptr(p) - uintptr(r.base)); size <= room {
		m.mu.Lock()
		r.usedLen = size
		m.regions[uintptr(p)] = r
		m.mu.Unlock()
		return p
	}

	np := m.Alloc(size, alignment)
	if np == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(np), size), unsafe.Slice((*byte)(p), r.usedLen))
	m.Free(p)
	return np
}

// UsableSize satisfies fallback.Allocator.
func (m *Mmap) UsableSize(p unsafe.Pointer) uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[uintptr(p)]
	if !ok {
		return 0
	}
	return r.usedLen
}
