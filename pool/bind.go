package pool

import (
	"unsafe"

	"github.com/modern-go/reflect2"
)

// Bind writes p into out, which must be a pointer to a pointer (e.g.
// &dst where dst is *T), giving the caller a typed view onto memory owned
// by the pool without hand-writing an unsafe.Pointer cast at every call
// site. It generalizes the teacher's alloc.Base.Get(ref, ptr) helper,
// which does the same thing for its own offset-addressed slabs.
func Bind(p unsafe.Pointer, out interface{}) {
	*(*unsafe.Pointer)(reflect2.PtrOf(out)) = p
}
