// Package metrics exposes Prometheus instrumentation for the batch
// and serverless scheduling engines: queue depth, scheduling-tick
// latency, per-node core utilization, and invocation/job outcome
// counters. Scheduling-tick latency is real wall-clock time spent
// computing a scheduling decision; invocation latency is simulated
// time, taken from each invocation's submit and finish dates.
package metrics
