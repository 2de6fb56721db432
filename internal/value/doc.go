// Package value provides the schema-less structured value type used for
// procedure step arguments and results.
//
// Values are persisted before every step and replayed after a restart, so the
// set of types is closed: Null, String, Int, Bool, List and Map. There is no
// floating point type; identities derived from values must be byte-stable
// across hosts, and int64 is sufficient for the counters and ids procedures
// pass around.
//
// This package imports nothing internal.
package value
