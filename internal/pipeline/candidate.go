// Package pipeline implements the batch news pipeline: canonicalization,
// content-addressed deduplication, relevance classification, two-stage
// fallback escalation, and the forced-pick guarantee.
package pipeline

import (
	"sort"
	"strings"
	"time"
)

// Candidate is one news item flowing through the pipeline. Immutable once
// resolved except for the appended derived fields (FinalLink, Signature).
type Candidate struct {
	Title       string
	RawLink     string
	FinalLink   string
	Summary     string
	PublishedAt time.Time // zero when the feed carried no usable date
	Publisher   string    // feed-declared source name, may be empty
	Signature   string
}

// Link returns the resolved address when available, else the raw one.
func (c Candidate) Link() string {
	if c.FinalLink != "" {
		return c.FinalLink
	}
	return c.RawLink
}

// Text is the searchable surface used by keyword gates.
func (c Candidate) Text() string {
	return c.Title + " " + c.Summary
}

// ContainsFold reports whether the candidate text contains term,
// case-insensitively.
func (c Candidate) ContainsFold(term string) bool {
	return strings.Contains(strings.ToLower(c.Text()), strings.ToLower(term))
}

// Verdict is the outcome of judging one (candidate, entity) pair. Never
// shared across entities.
type Verdict struct {
	IsRelevant bool   `json:"is_relevant"`
	Reason     string `json:"reason"`
	Summary    string `json:"summary"`
	Importance int    `json:"importance"`
	ForcedPick bool   `json:"forced_pick,omitempty"`
}

// Accepted pairs a candidate with the verdict that admitted it.
type Accepted struct {
	Candidate Candidate
	Verdict   Verdict
}

// EntityResult is the per-entity outcome of a run.
type EntityResult struct {
	EntityID   string
	EntityName string
	Accepted   []Accepted
	Candidates []Candidate // keyword-matched pool of the latest non-empty pass
	ForcedPick bool
	Fallback   bool // satisfied only by the extended-window pass
}

// Mode selects classification strictness.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeRelaxed Mode = "relaxed"
)

// sortNewestFirst orders candidates by published time descending, with the
// link as tiebreak so cap trimming stays deterministic.
func sortNewestFirst(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return newer(candidates[i], candidates[j])
	})
}

func newer(a, b Candidate) bool {
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.After(b.PublishedAt)
	}
	return a.Link() < b.Link()
}
