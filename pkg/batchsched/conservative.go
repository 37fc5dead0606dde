package batchsched

import (
	"time"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/timeline"
)

// ConservativeBackfillScheduler gives every queued job a reservation
// as soon as it is submitted, computed in queue order so no job ever
// delays one ahead of it, then lets later jobs start early whenever
// they fit into the resources the reservations ahead of them leave
// idle. When
// CoreLevel is false the algorithm reserves whole hosts per job
// (node-level); when true it reserves individual cores per host,
// letting multiple jobs share a host (core-level).
type ConservativeBackfillScheduler struct {
	handle    ServiceHandle
	tl        *timeline.Timeline
	coreLevel bool

	queue    []*job.BatchJob
	reserved map[uint64]reservationInfo
}

type reservationInfo struct {
	start time.Time
	hosts []string
}

// NewConservativeBackfillScheduler creates a conservative backfilling
// scheduler. coreLevel selects core-level instead of node-level
// reservation granularity.
func NewConservativeBackfillScheduler(coreLevel bool) *ConservativeBackfillScheduler {
	return &ConservativeBackfillScheduler{coreLevel: coreLevel, reserved: make(map[uint64]reservationInfo)}
}

func (s *ConservativeBackfillScheduler) Init(handle ServiceHandle, tl *timeline.Timeline) {
	s.handle = handle
	s.tl = tl
}

func (s *ConservativeBackfillScheduler) Launch() {}

func (s *ConservativeBackfillScheduler) Shutdown() {
	s.queue = nil
	s.reserved = make(map[uint64]reservationInfo)
}

func (s *ConservativeBackfillScheduler) ProcessJobSubmission(bj *job.BatchJob) {
	s.queue = append(s.queue, bj)
	s.compact()
}

func (s *ConservativeBackfillScheduler) ProcessJobCompletion(bj *job.BatchJob) {
	s.releaseAndCompact(bj)
}

func (s *ConservativeBackfillScheduler) ProcessJobFailure(bj *job.BatchJob) {
	s.releaseAndCompact(bj)
}

func (s *ConservativeBackfillScheduler) ProcessJobTermination(bj *job.BatchJob) {
	s.releaseAndCompact(bj)
}

func (s *ConservativeBackfillScheduler) releaseAndCompact(bj *job.BatchJob) {
	s.tl.Remove(jobKey(bj))
	delete(s.reserved, bj.ID)
	// A job finishing early (or being killed) may free resources
	// ahead of what every queued job's reservation assumed; recompute
	// every reservation from scratch in queue order.
	s.compact()
}

// compact drops every queued job's placeholder reservation and
// recomputes them in queue order, so earlier-queued jobs never get
// pushed later by this recomputation and later jobs may land in
// whatever idle capacity the earlier ones' reservations leave behind.
func (s *ConservativeBackfillScheduler) compact() {
	s.tl.SetTimeOrigin(s.handle.Now())
	for _, bj := range s.queue {
		s.tl.Remove(jobKey(bj))
	}
	s.reserved = make(map[uint64]reservationInfo)

	for _, bj := range s.queue {
		duration := bj.Walltime()
		if s.coreLevel {
			start, hosts, err := s.tl.FindEarliestStartTimeCoreLevel(bj.NodesRequested, bj.CoresPerNode, duration)
			if err != nil {
				continue
			}
			if _, err := s.tl.AddCoresOnHosts(jobKey(bj), hosts, bj.CoresPerNode, start, start.Add(duration)); err != nil {
				continue
			}
			s.reserved[bj.ID] = reservationInfo{start: start, hosts: hosts}
		} else {
			start, hosts, err := s.tl.FindEarliestStartTime(bj.NodesRequested, duration)
			if err != nil {
				continue
			}
			if err := s.tl.AddOnHosts(jobKey(bj), hosts, start, start.Add(duration)); err != nil {
				continue
			}
			s.reserved[bj.ID] = reservationInfo{start: start, hosts: hosts}
		}
	}
}

// ProcessQueuedJobs starts every queued job whose reservation begins
// at the service's current time, in queue order, without blocking
// later jobs behind one that isn't ready yet.
func (s *ConservativeBackfillScheduler) ProcessQueuedJobs() []*job.BatchJob {
	now := s.handle.Now()
	var started []*job.BatchJob
	var remaining []*job.BatchJob

	for _, bj := range s.queue {
		info, ok := s.reserved[bj.ID]
		if !ok || info.start.After(now) {
			remaining = append(remaining, bj)
			continue
		}
		alloc := s.allocationFor(bj, info.hosts)
		s.handle.StartJob(bj, alloc)
		delete(s.reserved, bj.ID)
		started = append(started, bj)
	}
	s.queue = remaining
	return started
}

func (s *ConservativeBackfillScheduler) allocationFor(bj *job.BatchJob, hosts []string) map[string]job.NodeAllocation {
	alloc := make(map[string]job.NodeAllocation, len(hosts))
	for _, h := range hosts {
		if s.coreLevel {
			alloc[h] = job.NodeAllocation{Cores: bj.CoresPerNode}
		} else {
			alloc[h] = job.NodeAllocation{Cores: s.handle.CoresPerHost(h)}
		}
	}
	return alloc
}

// Queued returns a snapshot of the queue.
func (s *ConservativeBackfillScheduler) Queued() []*job.BatchJob {
	out := make([]*job.BatchJob, len(s.queue))
	copy(out, s.queue)
	return out
}

// ScheduleOnHosts starts bj immediately on exactly the given hosts,
// bypassing its computed reservation, and recompacts the remaining
// queue since the timeline changed.
func (s *ConservativeBackfillScheduler) ScheduleOnHosts(bj *job.BatchJob, hosts []string) error {
	now := s.handle.Now()
	s.tl.Remove(jobKey(bj))
	delete(s.reserved, bj.ID)

	var err error
	if s.coreLevel {
		_, err = s.tl.AddCoresOnHosts(jobKey(bj), hosts, bj.CoresPerNode, now, now.Add(bj.Walltime()))
	} else {
		err = s.tl.AddOnHosts(jobKey(bj), hosts, now, now.Add(bj.Walltime()))
	}
	if err != nil {
		return err
	}
	s.queue = removeJob(s.queue, bj)
	s.handle.StartJob(bj, s.allocationFor(bj, hosts))
	s.compact()
	return nil
}

// GetStartTimeEstimates reports the same reservation-based estimate
// ProcessQueuedJobs would eventually honor, without mutating the
// timeline.
func (s *ConservativeBackfillScheduler) GetStartTimeEstimates(requests []StartTimeRequest) map[uint64]time.Time {
	out := make(map[uint64]time.Time, len(requests))
	for _, r := range requests {
		duration := time.Duration(r.WalltimeSeconds) * time.Second
		var start time.Time
		var err error
		if s.coreLevel {
			start, _, err = s.tl.FindEarliestStartTimeCoreLevel(r.NodesRequested, r.CoresPerNode, duration)
		} else {
			start, _, err = s.tl.FindEarliestStartTime(r.NodesRequested, duration)
		}
		if err != nil {
			continue
		}
		out[r.JobID] = start
	}
	return out
}
