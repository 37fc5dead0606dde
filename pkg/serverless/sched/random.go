package sched

import (
	"math/rand"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/serverless/state"
)

// RandomScheduler picks a feasible node uniformly at random for both
// image placement and binding, seeded deterministically so a given
// simulation run reproduces identically.
type RandomScheduler struct {
	rng *rand.Rand
}

func NewRandomScheduler(seed int64) *RandomScheduler {
	return &RandomScheduler{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomScheduler) Init() {}

func (s *RandomScheduler) ManageImages(invocations []*job.Invocation, snap state.Snapshot) ImageDecision {
	decision := ImageDecision{Copy: map[string][]string{}}
	for _, inv := range invocations {
		img := imageOf(inv)
		var feasible []string
		for _, node := range snap.Nodes() {
			if !snap.IsImageResident(node, img) && !snap.IsImageBeingCopied(node, img) {
				feasible = append(feasible, node)
			}
		}
		if len(feasible) == 0 {
			continue
		}
		node := feasible[s.rng.Intn(len(feasible))]
		if !containsString(decision.Copy[node], img) {
			decision.Copy[node] = append(decision.Copy[node], img)
		}
	}
	return decision
}

func (s *RandomScheduler) ScheduleFunctions(invocations []*job.Invocation, snap state.Snapshot) []Binding {
	var bindings []Binding
	coresUsed := map[string]int{}
	ramUsed := map[string]int64{}
	for _, inv := range invocations {
		img := imageOf(inv)
		rf := inv.RegisteredFunction
		var feasible []string
		for _, node := range snap.Nodes() {
			if !snap.IsImageResident(node, img) {
				continue
			}
			availCores := snap.AvailableCores(node) - coresUsed[node]
			availRAM := snap.AvailableRAMBytes(node) - ramUsed[node]
			if availCores < 1 || availRAM < rf.RAMLimitBytes {
				continue
			}
			feasible = append(feasible, node)
		}
		if len(feasible) == 0 {
			continue
		}
		node := feasible[s.rng.Intn(len(feasible))]
		bindings = append(bindings, Binding{Invocation: inv, Node: node})
		coresUsed[node]++
		ramUsed[node] += rf.RAMLimitBytes
	}
	return bindings
}
