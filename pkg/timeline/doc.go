// Package timeline implements the availability timeline used by the
// batch scheduler family to reason about future resource occupancy:
// node-level reservations (a job holds a whole host) and core-level
// reservations (a job holds some cores on a host), both keyed by a
// simulated start/end interval.
package timeline
