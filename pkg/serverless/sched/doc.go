// Package sched implements the serverless scheduler family: FCFS,
// random, and workload-balancing policies that each consult a
// read-only state.Snapshot and return an image-placement decision plus
// an invocation-to-node binding list. No policy here ever mutates the
// snapshot it is given — only the serverless compute service in
// pkg/serverless/service acts on a policy's decisions. The scheduler
// must never be given write access, only something to consult.
package sched
