//go:build unix

package fallback

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMmapRoundTrip(t *testing.T) {
	testAllocatorRoundTrip(t, NewMmap())
}

func TestMmapReallocShrinkKeepsPointer(t *testing.T) {
	m := NewMmap()
	p := m.Alloc(4096, 4096)
	require.NotNil(t, p)
	same := m.Realloc(p, 64, 4096)
	require.Equal(t, p, same)
	m.Free(p)
}
