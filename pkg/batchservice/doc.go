// Package batchservice implements the batch compute service: job
// admission, a workload-trace loader, and the message loop that
// drives a pkg/batchsched.Scheduler against a pkg/timeline.Timeline
// and pkg/simkernel execution primitives.
package batchservice
