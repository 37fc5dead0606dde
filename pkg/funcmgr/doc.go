// Package funcmgr implements the Function Manager: a
// thin, per-controller façade over a serverless service that creates
// functions, registers and invokes them, and lets a caller block until
// one or all of its invocations reach a terminal state. It carries no
// scheduling logic of its own.
package funcmgr
