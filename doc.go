// Package sqlkit builds SQL from composable fragments, compiles it into
// dialect-correct parameterized queries and executes it over a pool of
// exclusively leased connections.
//
// Invariants:
//
//   - Compile is pure: the same Statement and Dialect always produce the
//     same text and parameters, and the i-th parameter binds to the i-th
//     placeholder.
//   - Every successful Acquire is matched by exactly one release, including
//     on error, panic and cancellation.
//   - A transaction scope ends with exactly one COMMIT or ROLLBACK (or the
//     savepoint equivalents when nested).
//   - A canceled Stream delivers no further rows and closes its cursor once.
//   - Config and connection errors are safe to log by default.
//
// Physical connections come from a Driver; see the pgxdriver and sqldriver
// packages.
package sqlkit
