package batchsched

import (
	"time"

	"github.com/cuemby/simbatch/pkg/job"
)

// fakeHandle is a minimal ServiceHandle test double: a fixed cluster
// shape, a mutable simulated clock, and a record of every StartJob
// call so tests can assert on what the scheduler decided.
type fakeHandle struct {
	hosts   []string
	cores   map[string]int
	ram     map[string]int64
	now     time.Time
	started []startedJob
}

type startedJob struct {
	Job   *job.BatchJob
	Alloc map[string]job.NodeAllocation
}

func newFakeHandle(hosts []string, coresPerHost int) *fakeHandle {
	cores := make(map[string]int, len(hosts))
	ram := make(map[string]int64, len(hosts))
	for _, h := range hosts {
		cores[h] = coresPerHost
		ram[h] = 1 << 30
	}
	return &fakeHandle{hosts: hosts, cores: cores, ram: ram, now: time.Unix(0, 0)}
}

func (f *fakeHandle) Hosts() []string               { return f.hosts }
func (f *fakeHandle) CoresPerHost(host string) int   { return f.cores[host] }
func (f *fakeHandle) RAMBytesPerHost(host string) int64 { return f.ram[host] }
func (f *fakeHandle) Now() time.Time                 { return f.now }

func (f *fakeHandle) StartJob(bj *job.BatchJob, allocation map[string]job.NodeAllocation) {
	bj.Start(f.now, allocation)
	f.started = append(f.started, startedJob{Job: bj, Alloc: allocation})
}

func newTestJob(id uint64, nodes, coresPerNode int, walltimeSeconds int64, arrival time.Time) *job.BatchJob {
	cj := job.NewCompoundJob("job", job.NewGenericAction("a", coresPerNode, 0))
	return job.NewBatchJob(id, cj, nodes, coresPerNode, walltimeSeconds, arrival, "user", "")
}
