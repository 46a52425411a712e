//go:build 386 || arm || mips || mipsle

package pool

// l0Max is the inline L0 array length. On 32-bit targets, pointer-sized
// fields in tlsBucket are 4 bytes wide, so there is room for 10 uint32
// slots while keeping the record at exactly 64 bytes.
const l0Max = 10
