// Package session implements the distributed session store: JSON records
// in a shared cache with a per-principal index, an in-process fallback
// backend, and a failover Store that degrades to local-only operation
// when the cache is unreachable. Degradation is logged and latched, not
// masked.
package session
