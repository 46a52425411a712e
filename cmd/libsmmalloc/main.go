// Command libsmmalloc builds smmalloc as a C shared library
// (-buildmode=c-shared): every exported function below is reachable from C
// as smmalloc_<name>, taking and returning plain integer handles so no Go
// pointer ever crosses the cgo boundary.
package main

/*
#include <stddef.h>
*/
import "C"

import (
	"sync/atomic"
	"unsafe"

	"github.com/modern-go/concurrent"

	"github.com/mkbeh/smmalloc/pool"
)

var (
	allocators   = concurrent.NewMap()
	threadCaches = concurrent.NewMap()
	nextHandle   uint64
)

func newHandle() C.ulonglong {
	return C.ulonglong(atomic.AddUint64(&nextHandle, 1))
}

//export smmalloc_create
func smmalloc_create(bucketsCount C.int, bucketSizeBytes C.size_t) C.ulonglong {
	a, err := pool.New(pool.Config{
		BucketsCount:    int(bucketsCount),
		BucketSizeBytes: uintptr(bucketSizeBytes),
		Stats:           pool.NewStats(),
	})
	if err != nil {
		return 0
	}
	h := newHandle()
	allocators.Store(uint64(h), a)
	return h
}

//export smmalloc_destroy
func smmalloc_destroy(handle C.ulonglong) {
	v, ok := allocators.Load(uint64(handle))
	if !ok {
		return
	}
	v.(*pool.Allocator).Close()
	allocators.Delete(uint64(handle))
}

//export smmalloc_thread_cache_create
func smmalloc_thread_cache_create(handle C.ulonglong, warmup C.int, sizeBytes C.size_t) C.ulonglong {
	v, ok := allocators.Load(uint64(handle))
	if !ok {
		return 0
	}
	a := v.(*pool.Allocator)
	tc := a.NewThreadCache(pool.Warmup(warmup), uintptr(sizeBytes))
	h := newHandle()
	threadCaches.Store(uint64(h), tc)
	return h
}

//export smmalloc_thread_cache_destroy
func smmalloc_thread_cache_destroy(handle C.ulonglong) {
	v, ok := threadCaches.Load(uint64(handle))
	if !ok {
		return
	}
	v.(*pool.ThreadCache).Close()
	threadCaches.Delete(uint64(handle))
}

func lookupAllocator(handle C.ulonglong) *pool.Allocator {
	v, ok := allocators.Load(uint64(handle))
	if !ok {
		return nil
	}
	return v.(*pool.Allocator)
}

func lookupThreadCache(tcHandle C.ulonglong) *pool.ThreadCache {
	if tcHandle == 0 {
		return nil
	}
	v, ok := threadCaches.Load(uint64(tcHandle))
	if !ok {
		return nil
	}
	return v.(*pool.ThreadCache)
}

//export smmalloc_malloc
func smmalloc_malloc(handle, tcHandle C.ulonglong, bytes, alignment C.size_t) unsafe.Pointer {
	a := lookupAllocator(handle)
	if a == nil {
		return nil
	}
	return a.Alloc(lookupThreadCache(tcHandle), uintptr(bytes), uintptr(alignment))
}

//export smmalloc_free
func smmalloc_free(handle, tcHandle C.ulonglong, ptr unsafe.Pointer) {
	a := lookupAllocator(handle)
	if a == nil {
		return
	}
	a.Free(lookupThreadCache(tcHandle), ptr)
}

//export smmalloc_realloc
func smmalloc_realloc(handle, tcHandle C.ulonglong, ptr unsafe.Pointer, bytes, alignment C.size_t) unsafe.Pointer {
	a := lookupAllocator(handle)
	if a == nil {
		return nil
	}
	return a.Realloc(lookupThreadCache(tcHandle), ptr, uintptr(bytes), uintptr(alignment))
}

//export smmalloc_msize
func smmalloc_msize(handle C.ulonglong, ptr unsafe.Pointer) C.size_t {
	a := lookupAllocator(handle)
	if a == nil {
		return 0
	}
	return C.size_t(a.UsableSize(ptr))
}

//export smmalloc_mbucket
func smmalloc_mbucket(handle C.ulonglong, ptr unsafe.Pointer) C.int {
	a := lookupAllocator(handle)
	if a == nil {
		return -1
	}
	return C.int(a.BucketIndex(ptr))
}

func main() {}
