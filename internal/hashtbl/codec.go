package hashtbl

import (
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Codec marshals/unmarshals values that are not already raw byte strings.
// Callers supply one per spec.md §6 ("a serializer for non-byte-string
// values ... and a matching deserializer").
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

// ErrPayloadTooLarge guards the 31-bit stored-size field.
var ErrPayloadTooLarge = errors.New("hashtbl: payload exceeds 2GiB-1 limit")

// encode compresses payload with LZ4, following the spec's degenerate-case
// rule: keep the compressed form only if it is strictly smaller than the
// original, otherwise store raw. Returns the header word and the bytes to
// actually place in the heap.
func encode(payload []byte, kind Kind) (header uint64, stored []byte, err error) {
	if len(payload) > maxPayloadBytes {
		return 0, nil, ErrPayloadTooLarge
	}
	bound := lz4.CompressBlockBound(len(payload))
	compressed := make([]byte, bound)
	var c lz4.Compressor
	n, cErr := c.CompressBlock(payload, compressed)
	if cErr == nil && n > 0 && n < len(payload) {
		if n > maxPayloadBytes {
			return 0, nil, ErrPayloadTooLarge
		}
		return makeHeader(uint32(len(payload)), kind, uint32(n)), compressed[:n], nil
	}
	// Compression didn't help (or the input was incompressible/empty):
	// store raw and leave uncompressed_size at 0, per spec.
	return makeHeader(0, kind, uint32(len(payload))), payload, nil
}

// decode reverses encode: LZ4-decompresses when the header records an
// uncompressed size, and asserts the recovered length matches exactly.
func decode(header uint64, stored []byte) ([]byte, Kind, error) {
	kind := headerKind(header)
	uncompressedSize := headerUncompressedSize(header)
	if uncompressedSize == 0 {
		return stored, kind, nil
	}
	out := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(stored, out)
	if err != nil {
		return nil, kind, fmt.Errorf("hashtbl: lz4 decompress: %w", err)
	}
	if n != int(uncompressedSize) {
		return nil, kind, fmt.Errorf("hashtbl: lz4 decompress produced %d bytes, header says %d", n, uncompressedSize)
	}
	return out, kind, nil
}
