package timeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/simbatch/pkg/simerr"
)

// reservation is one job's hold on some hosts over [Start, End). For a
// node-level reservation Hosts lists every host the job occupies in
// full; for a core-level reservation Cores gives the per-host core
// count instead and Hosts is unused.
type reservation struct {
	jobID string
	hosts []string
	cores map[string]int
	start time.Time
	end   time.Time
}

// Timeline tracks per-host core capacity over simulated time for one
// batch compute service. All operations are safe for
// concurrent use; every method takes the timeline's one mutex.
type Timeline struct {
	mu           sync.Mutex
	hosts        []string
	coresPerHost map[string]int
	origin       time.Time
	reservations map[string]*reservation
	order        []string
}

// New builds a timeline over the given hosts, each with coresPerHost
// cores.
func New(hosts []string, coresPerHost map[string]int) *Timeline {
	hostsCopy := make([]string, len(hosts))
	copy(hostsCopy, hosts)
	sort.Strings(hostsCopy)
	cph := make(map[string]int, len(coresPerHost))
	for h, c := range coresPerHost {
		cph[h] = c
	}
	return &Timeline{
		hosts:        hostsCopy,
		coresPerHost: cph,
		reservations: make(map[string]*reservation),
	}
}

// SetTimeOrigin fixes the instant the timeline considers "now". Start-time
// searches begin at the origin; existing reservations (e.g. of jobs
// already running) may start before it and are kept as they are.
func (t *Timeline) SetTimeOrigin(origin time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.origin = origin
}

// GetTimeOrigin returns the timeline's current origin.
func (t *Timeline) GetTimeOrigin() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.origin
}

// Clear removes every reservation, leaving the host capacities intact.
func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reservations = make(map[string]*reservation)
	t.order = nil
}

func (t *Timeline) validateRequest(numNodes, coresPerNode int) error {
	if numNodes <= 0 || coresPerNode <= 0 {
		return simerr.InvalidRequest("numNodes and coresPerNode must be positive, got %d/%d", numNodes, coresPerNode)
	}
	if numNodes > len(t.hosts) {
		return simerr.InvalidRequest("requested %d nodes but timeline only has %d hosts", numNodes, len(t.hosts))
	}
	for _, h := range t.hosts {
		if coresPerNode > t.coresPerHost[h] {
			return simerr.InvalidRequest("requested %d cores per node exceeds host %s capacity of %d", coresPerNode, h, t.coresPerHost[h])
		}
	}
	return nil
}

// Add reserves numNodes whole hosts for jobID over [start, end),
// node-level. It fails with InvalidRequest if numNodes exceeds the
// host count, and with CapacityExceeded if no combination of hosts is
// actually free for the whole interval.
func (t *Timeline) Add(jobID string, numNodes int, start, end time.Time) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.validateRequest(numNodes, 1); err != nil {
		return nil, err
	}
	if _, exists := t.reservations[jobID]; exists {
		return nil, simerr.InvalidRequest("job %s already has a reservation", jobID)
	}

	free := t.freeHostsDuring(start, end)
	if len(free) < numNodes {
		return nil, simerr.CapacityExceeded("only %d of %d requested nodes are free between %s and %s", len(free), numNodes, start, end)
	}
	chosen := free[:numNodes]
	t.reservations[jobID] = &reservation{jobID: jobID, hosts: append([]string{}, chosen...), start: start, end: end}
	t.order = append(t.order, jobID)
	return chosen, nil
}

// AddCores reserves coresPerNode cores on numNodes distinct hosts for
// jobID over [start, end), core-level.
func (t *Timeline) AddCores(jobID string, numNodes, coresPerNode int, start, end time.Time) (map[string]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.validateRequest(numNodes, coresPerNode); err != nil {
		return nil, err
	}
	if _, exists := t.reservations[jobID]; exists {
		return nil, simerr.InvalidRequest("job %s already has a reservation", jobID)
	}

	candidates := t.hostsWithFreeCores(coresPerNode, start, end)
	if len(candidates) < numNodes {
		return nil, simerr.CapacityExceeded("only %d of %d requested nodes have %d free cores between %s and %s", len(candidates), numNodes, coresPerNode, start, end)
	}
	alloc := make(map[string]int, numNodes)
	for _, h := range candidates[:numNodes] {
		alloc[h] = coresPerNode
	}
	t.reservations[jobID] = &reservation{jobID: jobID, cores: alloc, start: start, end: end}
	t.order = append(t.order, jobID)
	return alloc, nil
}

// FreeCoresDuring reports, for every host, how many cores are free
// throughout [start, end). Callers that need to apply their own
// host-selection policy use this to see the candidate
// pool before committing a reservation with AddOnHosts/AddCoresOnHosts.
func (t *Timeline) FreeCoresDuring(start, end time.Time) map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.hosts))
	for _, h := range t.hosts {
		out[h] = t.coresPerHost[h] - t.peakUsedCores(h, start, end)
	}
	return out
}

// AddOnHosts reserves exactly the given hosts, whole, for jobID over
// [start, end), failing with CapacityExceeded if any of them is not
// actually free throughout the window.
func (t *Timeline) AddOnHosts(jobID string, hosts []string, start, end time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.reservations[jobID]; exists {
		return simerr.InvalidRequest("job %s already has a reservation", jobID)
	}
	free := make(map[string]bool, len(t.hosts))
	for _, h := range t.freeHostsDuring(start, end) {
		free[h] = true
	}
	for _, h := range hosts {
		if !free[h] {
			return simerr.CapacityExceeded("host %s is not free between %s and %s", h, start, end)
		}
	}
	t.reservations[jobID] = &reservation{jobID: jobID, hosts: append([]string{}, hosts...), start: start, end: end}
	t.order = append(t.order, jobID)
	return nil
}

// AddCoresOnHosts reserves coresPerNode cores on exactly the given
// hosts for jobID over [start, end), failing with CapacityExceeded if
// any of them cannot offer coresPerNode free cores throughout the
// window.
func (t *Timeline) AddCoresOnHosts(jobID string, hosts []string, coresPerNode int, start, end time.Time) (map[string]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.reservations[jobID]; exists {
		return nil, simerr.InvalidRequest("job %s already has a reservation", jobID)
	}
	alloc := make(map[string]int, len(hosts))
	for _, h := range hosts {
		if t.coresPerHost[h]-t.peakUsedCores(h, start, end) < coresPerNode {
			return nil, simerr.CapacityExceeded("host %s cannot offer %d cores between %s and %s", h, coresPerNode, start, end)
		}
		alloc[h] = coresPerNode
	}
	t.reservations[jobID] = &reservation{jobID: jobID, cores: alloc, start: start, end: end}
	t.order = append(t.order, jobID)
	return alloc, nil
}

// Remove drops jobID's reservation, if any. Removing an unknown job is
// a no-op, matching the idempotent-cancellation idiom used elsewhere
// in this module.
func (t *Timeline) Remove(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.reservations[jobID]; !ok {
		return
	}
	delete(t.reservations, jobID)
	for i, id := range t.order {
		if id == jobID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// usedCoresAt returns how many cores of host are occupied at instant.
func (t *Timeline) usedCoresAt(host string, instant time.Time) int {
	used := 0
	for _, r := range t.reservations {
		if instant.Before(r.start) || !instant.Before(r.end) {
			continue
		}
		if r.cores != nil {
			used += r.cores[host]
			continue
		}
		for _, h := range r.hosts {
			if h == host {
				used += t.coresPerHost[host]
				break
			}
		}
	}
	return used
}

// peakUsedCores returns the maximum cores of host occupied at any
// instant in [start, end). Usage only changes at reservation
// boundaries, so sampling at start and at every reservation start
// falling inside the window is sufficient.
func (t *Timeline) peakUsedCores(host string, start, end time.Time) int {
	peak := t.usedCoresAt(host, start)
	for _, r := range t.reservations {
		if r.start.After(start) && r.start.Before(end) {
			if u := t.usedCoresAt(host, r.start); u > peak {
				peak = u
			}
		}
	}
	return peak
}

// freeHostsDuring returns, in host-name order, every host with zero
// cores occupied throughout [start, end).
func (t *Timeline) freeHostsDuring(start, end time.Time) []string {
	var free []string
	for _, h := range t.hosts {
		if t.peakUsedCores(h, start, end) == 0 {
			free = append(free, h)
		}
	}
	return free
}

// hostsWithFreeCores returns, in host-name order, every host with at
// least minCores free throughout [start, end).
func (t *Timeline) hostsWithFreeCores(minCores int, start, end time.Time) []string {
	var out []string
	for _, h := range t.hosts {
		if t.coresPerHost[h]-t.peakUsedCores(h, start, end) >= minCores {
			out = append(out, h)
		}
	}
	return out
}

// candidateTimes returns the origin plus every reservation end time at
// or after the origin, sorted ascending and deduplicated. A request
// that cannot start at the origin can always start at one of these
// instants, since usage only decreases at reservation ends.
func (t *Timeline) candidateTimes() []time.Time {
	seen := map[int64]bool{t.origin.UnixNano(): true}
	out := []time.Time{t.origin}
	for _, r := range t.reservations {
		if r.end.Before(t.origin) {
			continue
		}
		key := r.end.UnixNano()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r.end)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// FindEarliestStartTime returns the earliest instant at or after the
// timeline's origin at which numNodes whole hosts are free for the
// given duration, node-level, along with which hosts those are.
func (t *Timeline) FindEarliestStartTime(numNodes int, duration time.Duration) (time.Time, []string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.validateRequest(numNodes, 1); err != nil {
		return time.Time{}, nil, err
	}
	for _, candidate := range t.candidateTimes() {
		free := t.freeHostsDuring(candidate, candidate.Add(duration))
		if len(free) >= numNodes {
			return candidate, free[:numNodes], nil
		}
	}
	return time.Time{}, nil, simerr.CapacityExceeded("no feasible start time found for %d nodes", numNodes)
}

// FindEarliestStartTimeCoreLevel is the core-level analog of
// FindEarliestStartTime: it looks for numNodes hosts each offering at
// least coresPerNode free cores for the whole duration.
func (t *Timeline) FindEarliestStartTimeCoreLevel(numNodes, coresPerNode int, duration time.Duration) (time.Time, []string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.validateRequest(numNodes, coresPerNode); err != nil {
		return time.Time{}, nil, err
	}
	for _, candidate := range t.candidateTimes() {
		hosts := t.hostsWithFreeCores(coresPerNode, candidate, candidate.Add(duration))
		if len(hosts) >= numNodes {
			return candidate, hosts[:numNodes], nil
		}
	}
	return time.Time{}, nil, simerr.CapacityExceeded("no feasible start time found for %d nodes at %d cores each", numNodes, coresPerNode)
}

// GetNumAvailableNodesInFirstSlot returns how many hosts are
// completely free between the origin and the next reservation to
// start after the origin. If nothing is reserved to start after the
// origin, every host is reported available.
func (t *Timeline) GetNumAvailableNodesInFirstSlot() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	slotEnd, ok := t.firstSlotEnd()
	if !ok {
		return len(t.hosts)
	}
	return len(t.freeHostsDuring(t.origin, slotEnd))
}

// GetJobsInFirstSlot returns the IDs of every job reserved to start at
// the earliest instant after the origin, i.e. the jobs that bound the
// "first slot" used by the easy-backfilling shadow-time computation.
func (t *Timeline) GetJobsInFirstSlot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	slotEnd, ok := t.firstSlotEnd()
	if !ok {
		return nil
	}
	var jobs []string
	for _, id := range t.order {
		r := t.reservations[id]
		if r.start.Equal(slotEnd) {
			jobs = append(jobs, id)
		}
	}
	return jobs
}

// firstSlotEnd returns the earliest reservation start strictly after
// the origin, if any.
func (t *Timeline) firstSlotEnd() (time.Time, bool) {
	found := false
	var earliest time.Time
	for _, r := range t.reservations {
		if !r.start.After(t.origin) {
			continue
		}
		if !found || r.start.Before(earliest) {
			earliest = r.start
			found = true
		}
	}
	return earliest, found
}

// Print renders a diagnostic, human-readable dump of every current
// reservation, sorted by start time.
func (t *Timeline) Print() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := append([]string{}, t.order...)
	sort.Slice(ids, func(i, j int) bool {
		return t.reservations[ids[i]].start.Before(t.reservations[ids[j]].start)
	})
	out := fmt.Sprintf("timeline origin=%s\n", t.origin)
	for _, id := range ids {
		r := t.reservations[id]
		if r.cores != nil {
			out += fmt.Sprintf("  job=%s cores=%v start=%s end=%s\n", id, r.cores, r.start, r.end)
		} else {
			out += fmt.Sprintf("  job=%s hosts=%v start=%s end=%s\n", id, r.hosts, r.start, r.end)
		}
	}
	return out
}
