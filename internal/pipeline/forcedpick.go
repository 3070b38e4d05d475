package pipeline

import "strings"

// ForcePick selects one candidate unconditionally so an entity never ends a
// run empty-handed. Preference order over the newest-first pool:
//
//  1. a candidate carrying a high-value keyword
//  2. a candidate whose title names the entity
//  3. the newest candidate
//
// Returns nil only when the pool itself is empty.
func ForcePick(candidates []Candidate, entityName string, highValueKeywords []string) *Accepted {
	if len(candidates) == 0 {
		return nil
	}

	pool := make([]Candidate, len(candidates))
	copy(pool, candidates)
	sortNewestFirst(pool)

	for _, candidate := range pool {
		for _, keyword := range highValueKeywords {
			if candidate.ContainsFold(keyword) {
				return forced(candidate, "high-value keyword "+keyword, 3)
			}
		}
	}

	for _, candidate := range pool {
		if strings.Contains(strings.ToLower(candidate.Title), strings.ToLower(entityName)) {
			return forced(candidate, "title names the company", 3)
		}
	}

	return forced(pool[0], "newest available", 1)
}

func forced(candidate Candidate, reason string, importance int) *Accepted {
	return &Accepted{
		Candidate: candidate,
		Verdict: Verdict{
			IsRelevant: true,
			Reason:     reason,
			Summary:    truncateRunes(candidate.Title, 120),
			Importance: importance,
			ForcedPick: true,
		},
	}
}
