// Package batchsched implements the batch scheduler family: FCFS,
// conservative backfilling (node-level and core-level), and easy
// backfilling (depth 0 and depth 1). Every algorithm shares
// the Scheduler interface and talks to its owning compute service
// only through the narrow ServiceHandle it receives at Init, never
// through a back-pointer to the service itself.
package batchsched
