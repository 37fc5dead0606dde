package sched

import (
	"sort"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/serverless/state"
)

// WorkloadBalanceScheduler proportionally allocates cluster cores to
// function classes by their share of pending workload, then bin-packs
// each function's core budget onto nodes largest-available-first.
type WorkloadBalanceScheduler struct{}

func NewWorkloadBalanceScheduler() *WorkloadBalanceScheduler { return &WorkloadBalanceScheduler{} }

func (s *WorkloadBalanceScheduler) Init() {}

// funcGroup is one function's pending invocations, consumed LIFO.
type funcGroup struct {
	function    string
	rf          *job.RegisteredFunction
	invocations []*job.Invocation
	workload    float64
}

func groupByFunction(invocations []*job.Invocation) []*funcGroup {
	var order []string
	groups := map[string]*funcGroup{}
	for _, inv := range invocations {
		name := inv.RegisteredFunction.Function.Name
		g, ok := groups[name]
		if !ok {
			g = &funcGroup{function: name, rf: inv.RegisteredFunction}
			groups[name] = g
			order = append(order, name)
		}
		g.invocations = append(g.invocations, inv)
		g.workload += float64(inv.RegisteredFunction.TimeLimitSeconds)
	}
	result := make([]*funcGroup, 0, len(order))
	for _, name := range order {
		g := groups[name]
		for i, j := 0, len(g.invocations)-1; i < j; i, j = i+1, j-1 {
			g.invocations[i], g.invocations[j] = g.invocations[j], g.invocations[i]
		}
		result = append(result, g)
	}
	return result
}

// coreBudgets allocates totalCores across groups proportionally to
// each group's share of the aggregate pending workload, capped by its
// own pending invocation count.
func coreBudgets(groups []*funcGroup, totalCores int) map[string]int {
	totalWorkload := 0.0
	for _, g := range groups {
		totalWorkload += g.workload
	}
	budgets := map[string]int{}
	if totalWorkload <= 0 {
		return budgets
	}
	for _, g := range groups {
		share := g.workload / totalWorkload
		budget := int(share * float64(totalCores))
		if budget > len(g.invocations) {
			budget = len(g.invocations)
		}
		budgets[g.function] = budget
	}
	return budgets
}

// binPackNodes greedily packs up to budget cores of one function onto
// nodes, largest-available-first, against coresUsed already committed
// to other functions in this scheduling pass.
func binPackNodes(budget int, nodes []string, snap state.Snapshot, coresUsed map[string]int) map[string]int {
	type candidate struct {
		node  string
		avail int
	}
	candidates := make([]candidate, 0, len(nodes))
	for _, n := range nodes {
		candidates = append(candidates, candidate{node: n, avail: snap.AvailableCores(n) - coresUsed[n]})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].avail != candidates[j].avail {
			return candidates[i].avail > candidates[j].avail
		}
		return candidates[i].node < candidates[j].node
	})
	alloc := map[string]int{}
	remaining := budget
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		if c.avail <= 0 {
			continue
		}
		take := c.avail
		if take > remaining {
			take = remaining
		}
		alloc[c.node] = take
		remaining -= take
	}
	return alloc
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *WorkloadBalanceScheduler) ManageImages(invocations []*job.Invocation, snap state.Snapshot) ImageDecision {
	groups := groupByFunction(invocations)
	totalCores := 0
	for _, n := range snap.Nodes() {
		totalCores += snap.AvailableCores(n)
	}
	budgets := coreBudgets(groups, totalCores)

	decision := ImageDecision{Copy: map[string][]string{}}
	coresUsed := map[string]int{}
	for _, g := range groups {
		budget := budgets[g.function]
		if budget <= 0 {
			continue
		}
		alloc := binPackNodes(budget, snap.Nodes(), snap, coresUsed)
		img := g.rf.Function.Image.Name
		for _, node := range sortedKeys(alloc) {
			n := alloc[node]
			if n <= 0 {
				continue
			}
			coresUsed[node] += n
			if !snap.IsImageResident(node, img) && !snap.IsImageBeingCopied(node, img) {
				decision.Copy[node] = append(decision.Copy[node], img)
			}
		}
	}
	return decision
}

func (s *WorkloadBalanceScheduler) ScheduleFunctions(invocations []*job.Invocation, snap state.Snapshot) []Binding {
	groups := groupByFunction(invocations)
	totalCores := 0
	for _, n := range snap.Nodes() {
		totalCores += snap.AvailableCores(n)
	}
	budgets := coreBudgets(groups, totalCores)

	var bindings []Binding
	coresUsed := map[string]int{}
	ramUsed := map[string]int64{}
	for _, g := range groups {
		budget := budgets[g.function]
		if budget <= 0 {
			continue
		}
		alloc := binPackNodes(budget, snap.Nodes(), snap, coresUsed)
		img := g.rf.Function.Image.Name
		idx := 0
		for _, node := range sortedKeys(alloc) {
			remaining := alloc[node]
			for remaining > 0 && idx < len(g.invocations) {
				if !snap.IsImageResident(node, img) {
					break
				}
				availRAM := snap.AvailableRAMBytes(node) - ramUsed[node]
				if availRAM < g.rf.RAMLimitBytes {
					break
				}
				bindings = append(bindings, Binding{Invocation: g.invocations[idx], Node: node})
				coresUsed[node]++
				ramUsed[node] += g.rf.RAMLimitBytes
				remaining--
				idx++
			}
		}
	}
	return bindings
}
