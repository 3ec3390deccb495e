// Package metrics provides lock-free counters for engine observability.
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically, keeping the write path allocation-free. This package owns
// metric storage and snapshot creation only; export lives in
// metrics/export/ and reads Snapshot values. No I/O happens here.
package metrics
