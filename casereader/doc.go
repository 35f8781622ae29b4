// Package casereader reads SQLite case stores written by an optimization
// recorder: per-iteration snapshots of a nested driver/system/solver run.
//
// Nothing in a store records parent/child links between iterations. Each
// recorded case is keyed by an iteration coordinate, a flat delimited path
// string such as
//
//	rank0:SLSQP|0|root._solve_nonlinear|0|NLRunOnce|0
//
// and the reader reconstructs the execution tree from those strings alone:
// a descendant carries its ancestor's coordinate as a literal prefix, and a
// direct child's segment count is the next depth tracked anywhere in the
// store. Queries can walk that tree recursively across the five recorded
// categories (driver iterations, driver derivatives, system iterations,
// solver iterations, problem snapshots) in execution order.
//
// Cases materialize lazily, one point query per coordinate, with optional
// per-category caching. Four historical store formats are supported behind
// one decode layer; everything above it is format-agnostic.
//
// A Reader is single-threaded: it is opened read-only, takes coordinate
// snapshots once at Open, and is not safe for concurrent use.
package casereader
