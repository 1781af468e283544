// Package hashutil provides the integer-mixing hash the dependency table
// uses for turning a key into a good starting probe slot. The content
// table does not use it: its probe starts at hash & (H-1).
package hashutil

// Mix64 multiplies by the golden ratio (producing a well-mixed value in
// the high bits) and byte-swaps the result, moving those high bits down
// to serve as the low-order starting slot index. Grounded directly on
// hash_uint64 in the original implementation this store's spec was
// distilled from.
func Mix64(n uint64) uint64 {
	const goldenRatio = 0x9e3779b97f4a7c15
	return bswap64(n * goldenRatio)
}

func bswap64(n uint64) uint64 {
	return ((n & 0x00000000000000ff) << 56) |
		((n & 0x000000000000ff00) << 40) |
		((n & 0x0000000000ff0000) << 24) |
		((n & 0x00000000ff000000) << 8) |
		((n & 0x000000ff00000000) >> 8) |
		((n & 0x0000ff0000000000) >> 24) |
		((n & 0x00ff000000000000) >> 40) |
		((n & 0xff00000000000000) >> 56)
}
