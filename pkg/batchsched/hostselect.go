package batchsched

import "sort"

// hostCandidate is one host's name paired with however many free
// cores it currently offers, used by every host-selection policy.
type hostCandidate struct {
	Name      string
	FreeCores int
}

// roundRobinCursor remembers where the previous RoundRobin selection
// left off, so consecutive selections spread across distinct hosts
// instead of always starting from the first candidate.
type roundRobinCursor struct {
	next int
}

// selectHosts picks n candidates from the given set, per policy. Candidates
// must already contain only hosts that satisfy the request (enough
// free cores); selectHosts only decides which of them to prefer.
func selectHosts(policy HostSelectionPolicy, candidates []hostCandidate, n int, rr *roundRobinCursor) []hostCandidate {
	ordered := make([]hostCandidate, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	switch policy {
	case BestFit:
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].FreeCores < ordered[j].FreeCores })
		return firstN(ordered, n)
	case RoundRobin:
		return roundRobinN(ordered, n, rr)
	default: // FirstFit
		return firstN(ordered, n)
	}
}

func firstN(candidates []hostCandidate, n int) []hostCandidate {
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

func roundRobinN(ordered []hostCandidate, n int, rr *roundRobinCursor) []hostCandidate {
	if len(ordered) == 0 {
		return nil
	}
	if rr.next >= len(ordered) {
		rr.next = 0
	}
	if n > len(ordered) {
		n = len(ordered)
	}
	out := make([]hostCandidate, 0, n)
	idx := rr.next
	for len(out) < n {
		out = append(out, ordered[idx])
		idx = (idx + 1) % len(ordered)
	}
	rr.next = idx
	return out
}
