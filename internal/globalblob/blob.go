// Package globalblob implements the store's single size-prefixed byte
// buffer: the master writes it once per phase, workers read copies of
// it, per spec.md §4.3.
package globalblob

import (
	"errors"
	"sync/atomic"
	"unsafe"
)

// ErrAlreadySet is returned by Store when the blob already holds data;
// callers must Clear before writing a new value.
var ErrAlreadySet = errors.New("globalblob: blob already set")

// ErrTooLarge is returned by Store when data would not fit in the
// region's configured global_size_b.
var ErrTooLarge = errors.New("globalblob: data exceeds global_size_b")

// ErrEmpty is returned by Load when the blob has never been written (or
// has been cleared).
var ErrEmpty = errors.New("globalblob: blob is empty")

const lengthPrefixSize = 8

// Blob wraps the region's global blob sub-slice: an 8-byte little-endian
// length prefix followed by strictly fewer than len(bytes)-8 payload bytes.
type Blob struct {
	bytes []byte // region.Region.GlobalBlobBytes()
}

// New wraps bytes (normally a view into the shared region) as a Blob.
func New(bytes []byte) (*Blob, error) {
	if len(bytes) <= lengthPrefixSize {
		return nil, errors.New("globalblob: backing slice too small for the length prefix")
	}
	return &Blob{bytes: bytes}, nil
}

func (b *Blob) lengthPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&b.bytes[0]))
}

func (b *Blob) length() uint64 {
	return atomic.LoadUint64(b.lengthPtr())
}

// Store writes data into the blob. Master-only; the caller is
// responsible for the guard.AssertMaster call, per internal/deptbl's
// layering precedent. Fails if the blob already holds data (callers
// must Clear first) or if data would not fit.
func (b *Blob) Store(data []byte) error {
	if b.length() != 0 {
		return ErrAlreadySet
	}
	if uint64(len(data)) >= uint64(len(b.bytes))-lengthPrefixSize {
		return ErrTooLarge
	}
	copy(b.bytes[lengthPrefixSize:], data)
	atomic.StoreUint64(b.lengthPtr(), uint64(len(data)))
	return nil
}

// Load returns a copy of the stored blob. Any process may call this.
func (b *Blob) Load() ([]byte, error) {
	n := b.length()
	if n == 0 {
		return nil, ErrEmpty
	}
	out := make([]byte, n)
	copy(out, b.bytes[lengthPrefixSize:lengthPrefixSize+n])
	return out, nil
}

// Clear resets the blob to empty. Master-only.
func (b *Blob) Clear() {
	atomic.StoreUint64(b.lengthPtr(), 0)
}
