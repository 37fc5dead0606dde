// Package job holds the universal data types shared by the batch and
// serverless scheduling engines: the compound job a user submits, the
// scheduler-side batch job wrapper, the function/registered-function/
// invocation triad, and the narrow action/payload abstractions that
// keep action and function I/O opaque to the core.
package job
