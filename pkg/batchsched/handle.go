package batchsched

import (
	"time"

	"github.com/cuemby/simbatch/pkg/job"
)

// ServiceHandle is the narrow capability a batch compute service
// grants its scheduler at Init: enough to read cluster shape and start
// a job's execution, nothing else. A scheduler never holds a pointer
// to the service itself.
type ServiceHandle interface {
	// Hosts lists every host the service manages, in a stable order.
	Hosts() []string
	CoresPerHost(host string) int
	RAMBytesPerHost(host string) int64

	// Now returns the service's current simulated time.
	Now() time.Time

	// StartJob transitions bj to running with the given per-host
	// allocation, at the service's current time, and begins its
	// execution.
	StartJob(bj *job.BatchJob, allocation map[string]job.NodeAllocation)
}

// HostSelectionPolicy picks which idle hosts a job should use when more
// are available than required.
type HostSelectionPolicy string

const (
	FirstFit   HostSelectionPolicy = "firstfit"
	BestFit    HostSelectionPolicy = "bestfit"
	RoundRobin HostSelectionPolicy = "roundrobin"
)
