// Package service implements the Serverless Compute Service: it
// registers functions, admits invocations, consults a
// pkg/serverless/sched policy over a pkg/serverless/state snapshot,
// performs image copies and RAM loads, enforces per-node core/RAM/
// disk limits, and drives each invocation through its lifecycle to a
// terminal outcome. It is a single cooperative actor in the spirit of
// pkg/batchservice: one goroutine owns the state and blocks on a typed
// inbox, since every service here is its own process.
package service
