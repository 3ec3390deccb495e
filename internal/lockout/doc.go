// Package lockout implements sliding-window failed-attempt tracking with
// a two-tier lock record: an in-process map for the fast path and a
// caller-supplied durable store that survives restarts and is visible
// across instances. The durable record is the source of truth; the map
// is a cache reconciled lazily on read and written through on mutation.
package lockout
