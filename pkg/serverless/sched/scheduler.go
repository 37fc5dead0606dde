package sched

import (
	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/serverless/state"
)

// ImageDecision is a policy's request to copy images onto nodes, or
// to remove them, keyed by node.
type ImageDecision struct {
	Copy   map[string][]string
	Remove map[string][]string
}

// Binding assigns one invocation to one node.
type Binding struct {
	Invocation *job.Invocation
	Node       string
}

// Scheduler is the common interface every serverless scheduling
// policy implements, realized as a two-call variant offered as an
// alternative to a single schedule() call: ManageImages decides
// copies/evictions, ScheduleFunctions binds invocations to nodes.
// Both are pure functions of the invocations and the current
// Snapshot — a policy never holds a mutating handle to the service,
// unlike the batch scheduler family.
type Scheduler interface {
	Init()
	ManageImages(invocations []*job.Invocation, snap state.Snapshot) ImageDecision
	ScheduleFunctions(invocations []*job.Invocation, snap state.Snapshot) []Binding
}

func imageOf(inv *job.Invocation) string {
	return inv.RegisteredFunction.Function.Image.Name
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
