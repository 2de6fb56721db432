// Package kv defines the durable key/value store the choreography engine
// persists process state into.
//
// A store is partitioned into namespaces. The engine writes one global
// namespace holding the live pid set and one namespace per process
// ("process.<pid>"). Every write must be durable when Set returns: the engine
// persists a step record and then immediately runs procedure code that may
// have side effects.
//
// Implementations:
//   - sqlitekv: SQLite (WAL, synchronous=FULL)
//   - boltkv: BoltDB, one bucket per namespace
//   - memkv: in-memory, for tests and ephemeral runs
package kv
