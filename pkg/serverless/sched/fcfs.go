package sched

import (
	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/serverless/state"
)

// FCFSScheduler is the serverless FCFS policy: image
// management copies the image of every schedulable invocation to some
// feasible node that lacks it, in queue order, ignoring equity and
// never removing; binding walks invocations in queue order and picks
// the first node with the image resident and enough free cores/RAM.
type FCFSScheduler struct{}

func NewFCFSScheduler() *FCFSScheduler { return &FCFSScheduler{} }

func (s *FCFSScheduler) Init() {}

func (s *FCFSScheduler) ManageImages(invocations []*job.Invocation, snap state.Snapshot) ImageDecision {
	decision := ImageDecision{Copy: map[string][]string{}}
	for _, inv := range invocations {
		img := imageOf(inv)
		for _, node := range snap.Nodes() {
			if snap.IsImageResident(node, img) || snap.IsImageBeingCopied(node, img) {
				continue
			}
			if !containsString(decision.Copy[node], img) {
				decision.Copy[node] = append(decision.Copy[node], img)
			}
			break
		}
	}
	return decision
}

func (s *FCFSScheduler) ScheduleFunctions(invocations []*job.Invocation, snap state.Snapshot) []Binding {
	var bindings []Binding
	coresUsed := map[string]int{}
	ramUsed := map[string]int64{}
	for _, inv := range invocations {
		img := imageOf(inv)
		rf := inv.RegisteredFunction
		for _, node := range snap.Nodes() {
			if !snap.IsImageResident(node, img) {
				continue
			}
			availCores := snap.AvailableCores(node) - coresUsed[node]
			availRAM := snap.AvailableRAMBytes(node) - ramUsed[node]
			if availCores < 1 || availRAM < rf.RAMLimitBytes {
				continue
			}
			bindings = append(bindings, Binding{Invocation: inv, Node: node})
			coresUsed[node]++
			ramUsed[node] += rf.RAMLimitBytes
			break
		}
	}
	return bindings
}
