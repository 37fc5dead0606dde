package batchservice

import (
	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/simerr"
)

// JobArgs is the per-job argument set a submitter provides alongside a
// CompoundJob.
type JobArgs struct {
	Nodes           int    // -N: number of nodes requested
	CoresPerNode    int    // -c: cores per node requested
	WalltimeSeconds int64  // -t: requested walltime, seconds
	User            string // -u: submitting user, optional
	Color           string // -color: arbitrary tag, opaque to the service
}

// Validate checks a job's admission arguments for well-formedness, then
// against the cluster shape and cj's own minimum resource requirements.
// A request that could never be satisfied by this cluster, or by a
// single node of it, fails with NotEnoughResources rather than
// InvalidArgument: the arguments themselves are well-formed, the
// cluster just cannot run them.
func (a JobArgs) Validate(hostCount, coresPerHost int, ramBytesPerHost int64, cj *job.CompoundJob) error {
	if a.Nodes <= 0 {
		return simerr.InvalidArgument("-N must be positive, got %d", a.Nodes)
	}
	if a.CoresPerNode <= 0 {
		return simerr.InvalidArgument("-c must be positive, got %d", a.CoresPerNode)
	}
	if a.WalltimeSeconds <= 0 {
		return simerr.InvalidArgument("-t must be positive, got %d", a.WalltimeSeconds)
	}
	if a.Nodes > hostCount {
		return simerr.NotEnoughResources(cj.Name(), "batch")
	}
	if a.CoresPerNode > coresPerHost {
		return simerr.NotEnoughResources(cj.Name(), "batch")
	}
	if a.CoresPerNode < cj.MinRequiredCores() {
		return simerr.NotEnoughResources(cj.Name(), "batch")
	}
	if cj.MinRequiredRAM() > ramBytesPerHost {
		return simerr.NotEnoughResources(cj.Name(), "batch")
	}
	return nil
}
