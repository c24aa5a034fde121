package reconcile

import "sort"

// Thresholds split confidence into the three link states.
type Thresholds struct {
	AutoLink int
	Pending  int
}

func DefaultThresholds() Thresholds {
	return Thresholds{AutoLink: 90, Pending: 70}
}

// RankCandidates sorts by confidence, highest first. Ties keep retrieval order.
func RankCandidates(candidates []LinkCandidate) []LinkCandidate {
	ranked := make([]LinkCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	return ranked
}

// Classify decides the link state from the best candidate.
func Classify(candidates []LinkCandidate, th Thresholds) LinkDecision {
	if len(candidates) == 0 {
		return NoMatch(0, nil)
	}
	ranked := RankCandidates(candidates)
	best := ranked[0]
	switch {
	case best.Confidence >= th.AutoLink:
		return AutoLinked(best, ranked)
	case best.Confidence >= th.Pending:
		return Pending(best, ranked)
	}
	return NoMatch(best.Confidence, ranked)
}
