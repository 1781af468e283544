package deptbl

import "errors"

// ErrDepTableFull is raised when the bindings counter reaches the table's
// capacity before a CAS can claim a slot, per spec: "If dcounter >= D
// before CAS, raise dep-table-full."
var ErrDepTableFull = errors.New("deptbl: dep-table-full")

// ErrKeyTooLarge/ErrValTooLarge guard the 31-bit field width.
var (
	ErrKeyTooLarge = errors.New("deptbl: key does not fit in 31 bits")
	ErrValTooLarge = errors.New("deptbl: value does not fit in 31 bits")
)
