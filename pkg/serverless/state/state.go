package state

import (
	"sort"
	"time"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/simerr"
)

// copyOp records an in-flight image copy onto a node's disk.
type copyOp struct {
	Source        string
	TargetArrival time.Time
	SizeBytes     int64
}

// nodeState is one node's resource ledger: total/available cores,
// RAM, and disk, plus disk-resident images, RAM-resident images,
// in-flight copies, and per-image pin counts held by invocations that
// must not have their image evicted out from under them.
type nodeState struct {
	name string

	totalCores int
	availCores int

	totalRAMBytes int64
	availRAMBytes int64

	totalDiskBytes int64
	availDiskBytes int64

	resident  map[string]int64 // image name -> size, disk-resident
	loadedRAM map[string]int64 // image name -> size, RAM-resident
	copying   map[string]copyOp
	pins      map[string]int
}

func newNodeState(name string, cores int, ramBytes, diskBytes int64) *nodeState {
	return &nodeState{
		name:           name,
		totalCores:     cores,
		availCores:     cores,
		totalRAMBytes:  ramBytes,
		availRAMBytes:  ramBytes,
		totalDiskBytes: diskBytes,
		availDiskBytes: diskBytes,
		resident:       map[string]int64{},
		loadedRAM:      map[string]int64{},
		copying:        map[string]copyOp{},
		pins:           map[string]int{},
	}
}

// Snapshot is the read-only view of a State a scheduler consults. It
// never exposes a mutator.
type Snapshot interface {
	Nodes() []string
	AvailableCores(node string) int
	AvailableRAMBytes(node string) int64
	AvailableDiskBytes(node string) int64
	IsImageResident(node, image string) bool
	IsImageLoadedInRAM(node, image string) bool
	IsImageBeingCopied(node, image string) bool
	PendingInvocations() []*job.Invocation
}

// State is the serverless compute service's authoritative,
// scheduler-visible cluster view. Every mutator is called only by the
// owning service's single message-loop goroutine.
type State struct {
	order []string
	nodes map[string]*nodeState

	pendingOrder []string
	pending      map[string]*job.Invocation
}

// New builds a State over the given per-node capacities. hosts gives
// the stable iteration order every accessor and scheduler relies on
// for deterministic bin-packing and tie-breaks.
func New(hosts []string, coresPerHost map[string]int, ramPerHost, diskPerHost map[string]int64) *State {
	nodes := make(map[string]*nodeState, len(hosts))
	for _, h := range hosts {
		nodes[h] = newNodeState(h, coresPerHost[h], ramPerHost[h], diskPerHost[h])
	}
	return &State{
		order:   append([]string{}, hosts...),
		nodes:   nodes,
		pending: map[string]*job.Invocation{},
	}
}

func (s *State) Nodes() []string { return append([]string{}, s.order...) }

// TotalCores returns node's fixed core capacity, for observability
// accessors outside the scheduler's read-only Snapshot.
func (s *State) TotalCores(node string) int {
	n, ok := s.nodes[node]
	if !ok {
		return 0
	}
	return n.totalCores
}

func (s *State) AvailableCores(node string) int {
	n, ok := s.nodes[node]
	if !ok {
		return 0
	}
	return n.availCores
}

func (s *State) AvailableRAMBytes(node string) int64 {
	n, ok := s.nodes[node]
	if !ok {
		return 0
	}
	return n.availRAMBytes
}

func (s *State) AvailableDiskBytes(node string) int64 {
	n, ok := s.nodes[node]
	if !ok {
		return 0
	}
	return n.availDiskBytes
}

// TotalDiskBytes returns node's fixed disk capacity — the ceiling an
// image can never exceed regardless of eviction.
func (s *State) TotalDiskBytes(node string) int64 {
	n, ok := s.nodes[node]
	if !ok {
		return 0
	}
	return n.totalDiskBytes
}

func (s *State) IsImageResident(node, image string) bool {
	n, ok := s.nodes[node]
	if !ok {
		return false
	}
	_, ok = n.resident[image]
	return ok
}

func (s *State) IsImageLoadedInRAM(node, image string) bool {
	n, ok := s.nodes[node]
	if !ok {
		return false
	}
	_, ok = n.loadedRAM[image]
	return ok
}

func (s *State) IsImageBeingCopied(node, image string) bool {
	n, ok := s.nodes[node]
	if !ok {
		return false
	}
	_, ok = n.copying[image]
	return ok
}

// PendingInvocations returns the schedulable (not-yet-bound)
// invocations in submission order.
func (s *State) PendingInvocations() []*job.Invocation {
	out := make([]*job.Invocation, 0, len(s.pendingOrder))
	for _, id := range s.pendingOrder {
		if inv, ok := s.pending[id]; ok {
			out = append(out, inv)
		}
	}
	return out
}

// Enqueue adds inv to the pending queue.
func (s *State) Enqueue(inv *job.Invocation) {
	s.pending[inv.ID] = inv
	s.pendingOrder = append(s.pendingOrder, inv.ID)
}

// RemovePending removes an invocation from the pending queue, e.g.
// once the scheduler has bound it to a node.
func (s *State) RemovePending(invocationID string) {
	delete(s.pending, invocationID)
	for i, id := range s.pendingOrder {
		if id == invocationID {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			break
		}
	}
}

func (s *State) node(name string) (*nodeState, error) {
	n, ok := s.nodes[name]
	if !ok {
		return nil, simerr.InvalidRequest("unknown serverless node %q", name)
	}
	return n, nil
}

// ReserveCores holds n cores on node for a bound invocation.
func (s *State) ReserveCores(node string, n int) error {
	ns, err := s.node(node)
	if err != nil {
		return err
	}
	if ns.availCores < n {
		return simerr.CapacityExceeded("node %s has %d cores available, requested %d", node, ns.availCores, n)
	}
	ns.availCores -= n
	return nil
}

// ReleaseCores returns n cores to node's available pool.
func (s *State) ReleaseCores(node string, n int) {
	ns, err := s.node(node)
	if err != nil {
		return
	}
	ns.availCores += n
	if ns.availCores > ns.totalCores {
		ns.availCores = ns.totalCores
	}
}

// ReserveRAM holds bytes of RAM on node for a bound invocation's
// execution, separate from any image RAM residency.
func (s *State) ReserveRAM(node string, bytes int64) error {
	ns, err := s.node(node)
	if err != nil {
		return err
	}
	if ns.availRAMBytes < bytes {
		return simerr.CapacityExceeded("node %s has %d RAM bytes available, requested %d", node, ns.availRAMBytes, bytes)
	}
	ns.availRAMBytes -= bytes
	return nil
}

// ReleaseRAM returns bytes of RAM to node's available pool.
func (s *State) ReleaseRAM(node string, bytes int64) {
	ns, err := s.node(node)
	if err != nil {
		return
	}
	ns.availRAMBytes += bytes
	if ns.availRAMBytes > ns.totalRAMBytes {
		ns.availRAMBytes = ns.totalRAMBytes
	}
}

// BeginImageCopy reserves disk space for an in-flight copy of image
// onto node and records it as being-copied-in. An image that is
// already resident or already copying is not re-copied.
func (s *State) BeginImageCopy(node, image string, sizeBytes int64, source string, arrival time.Time) error {
	ns, err := s.node(node)
	if err != nil {
		return err
	}
	if _, ok := ns.resident[image]; ok {
		return simerr.InvalidRequest("image %s already resident on node %s", image, node)
	}
	if _, ok := ns.copying[image]; ok {
		return simerr.InvalidRequest("image %s already being copied to node %s", image, node)
	}
	if ns.availDiskBytes < sizeBytes {
		return simerr.CapacityExceeded("node %s has %d disk bytes available, image %s needs %d", node, ns.availDiskBytes, image, sizeBytes)
	}
	ns.availDiskBytes -= sizeBytes
	ns.copying[image] = copyOp{Source: source, TargetArrival: arrival, SizeBytes: sizeBytes}
	return nil
}

// CompleteImageCopy transitions image on node from being-copied to
// resident.
func (s *State) CompleteImageCopy(node, image string) error {
	ns, err := s.node(node)
	if err != nil {
		return err
	}
	op, ok := ns.copying[image]
	if !ok {
		return simerr.InvalidRequest("image %s has no in-flight copy to node %s", image, node)
	}
	delete(ns.copying, image)
	ns.resident[image] = op.SizeBytes
	return nil
}

// CancelImageCopy abandons an in-flight copy and returns its disk
// reservation, without ever marking the image resident.
func (s *State) CancelImageCopy(node, image string) {
	ns, err := s.node(node)
	if err != nil {
		return
	}
	op, ok := ns.copying[image]
	if !ok {
		return
	}
	delete(ns.copying, image)
	ns.availDiskBytes += op.SizeBytes
}

// EvictResidentImage frees a disk-resident image's space. It fails if
// the image is pinned by a still-incomplete invocation or is not resident.
func (s *State) EvictResidentImage(node, image string) error {
	ns, err := s.node(node)
	if err != nil {
		return err
	}
	size, ok := ns.resident[image]
	if !ok {
		return simerr.InvalidRequest("image %s is not resident on node %s", image, node)
	}
	if ns.pins[image] > 0 {
		return simerr.NotAllowed(node, "image "+image+" is pinned by a running invocation")
	}
	delete(ns.resident, image)
	ns.availDiskBytes += size
	return nil
}

// LoadImageIntoRAM reserves RAM for image on node and marks it
// RAM-resident.
func (s *State) LoadImageIntoRAM(node, image string, sizeBytes int64) error {
	ns, err := s.node(node)
	if err != nil {
		return err
	}
	if _, ok := ns.loadedRAM[image]; ok {
		return nil
	}
	if ns.availRAMBytes < sizeBytes {
		return simerr.CapacityExceeded("node %s has %d RAM bytes available, image %s needs %d", node, ns.availRAMBytes, image, sizeBytes)
	}
	ns.availRAMBytes -= sizeBytes
	ns.loadedRAM[image] = sizeBytes
	return nil
}

// EvictImageFromRAM frees image's RAM residency on node.
func (s *State) EvictImageFromRAM(node, image string) error {
	ns, err := s.node(node)
	if err != nil {
		return err
	}
	size, ok := ns.loadedRAM[image]
	if !ok {
		return simerr.InvalidRequest("image %s is not RAM-resident on node %s", image, node)
	}
	delete(ns.loadedRAM, image)
	ns.availRAMBytes += size
	return nil
}

// PinImage marks image on node as referenced by a not-yet-complete
// invocation; it cannot be evicted from disk until every pin is
// released.
func (s *State) PinImage(node, image string) {
	ns, err := s.node(node)
	if err != nil {
		return
	}
	ns.pins[image]++
}

// UnpinImage releases one reference installed by PinImage.
func (s *State) UnpinImage(node, image string) {
	ns, err := s.node(node)
	if err != nil {
		return
	}
	if ns.pins[image] > 0 {
		ns.pins[image]--
	}
}

// ResidentImages lists the images resident on node, largest first —
// the order a disk-pressure eviction policy would prefer to consider.
func (s *State) ResidentImages(node string) []string {
	ns, err := s.node(node)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(ns.resident))
	for name := range ns.resident {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if ns.resident[names[i]] != ns.resident[names[j]] {
			return ns.resident[names[i]] > ns.resident[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// IsImagePinned reports whether any invocation currently holds a pin
// on image on node.
func (s *State) IsImagePinned(node, image string) bool {
	ns, err := s.node(node)
	if err != nil {
		return false
	}
	return ns.pins[image] > 0
}
