// Package shmstore implements a lock-free, multi-process shared-memory
// store: one global blob slot, an append-only dependency multimap, and a
// compacting content-addressed table, all living in a single memory
// region mapped at the same fixed virtual address in a master process
// and any number of worker processes it spawns.
//
// Init creates the region and returns a Connector; workers pass that
// Connector to Connect to map the same region and start operating on it
// without any inter-process locking beyond the compare-and-swap
// protocols internal/deptbl and internal/hashtbl implement directly over
// shared memory.
package shmstore
