//go:build !386 && !arm && !mips && !mipsle

package pool

// l0Max is the inline L0 array length. On 64-bit targets, pointer-sized
// fields in tlsBucket are 8 bytes wide, so 7 uint32 slots is what keeps the
// record at exactly 64 bytes.
const l0Max = 7
