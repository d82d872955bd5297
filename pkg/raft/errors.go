package raft

import "errors"

// ErrStaleStore is returned by store implementations when a caller asks
// for an operation the contract in SPEC_FULL.md §4.1 forbids (for
// example an Overlay that would truncate an entry below Committed()). The core
// replica never triggers this from wire input; it only surfaces a bug in
// a caller driving a Store directly.
var ErrStaleStore = errors.New("raft: store operation violates durability contract")
