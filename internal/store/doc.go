// Package store persists the transport substrate in a single embedded
// SQLite database.
//
// Every component shares one Store handle. Calls are synchronous on the
// caller's goroutine; read-after-write holds within the handle. Multi-row
// invariants (a feed plus its members, one full encode or decode) are scoped
// with the explicit Begin/Succeed/End bracket, which commits only when
// Succeed was called and rolls back everything otherwise. Prepared
// statements are cached in a thread-safe LRU keyed by query text and rebound
// onto the open transaction when one is active.
//
// Expected lookup misses are returned as (zero, false, nil), never as
// errors. Duplicate inserts where uniqueness was assumed propagate the
// driver's constraint error; they indicate a missing existence check in the
// caller.
package store
