package region

import "unsafe"

// byteSliceAsUint64 reinterprets a byte slice backed by 8-byte-aligned
// shared memory as a []uint64 of the same length/8, the same
// reinterpret-in-place technique the teacher's hdrView/ringView types
// use (pointer arithmetic over the mapped bytes) generalized from a
// single fixed struct to an arbitrary-length word array.
func byteSliceAsUint64(b []byte) []uint64 {
	if len(b)%8 != 0 {
		panic("region: byte slice length is not a multiple of 8")
	}
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)
}
