package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"horse.fit/tickerbrief/internal/auxreport"
	"horse.fit/tickerbrief/internal/pipeline"
)

// reportDocument is the JSON document a run writes for downstream delivery.
type reportDocument struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Entities    []entityReport `json:"entities"`
	Stats       map[string]int `json:"stats"`
}

type entityReport struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Fallback   bool              `json:"fallback,omitempty"`
	ForcedPick bool              `json:"forced_pick,omitempty"`
	Items      []itemReport      `json:"items"`
	Analysis   *auxreport.Report `json:"analysis,omitempty"`
}

type itemReport struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Publisher   string     `json:"publisher,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Importance  int        `json:"importance"`
	ForcedPick  bool       `json:"forced_pick,omitempty"`
}

func buildReportDocument(run *pipeline.RunReport, analyses map[string]*auxreport.Report) reportDocument {
	doc := reportDocument{
		GeneratedAt: run.FinishedAt,
		Stats:       run.Stats,
		Entities:    make([]entityReport, 0, len(run.Entities)),
	}

	for _, result := range run.Entities {
		entity := entityReport{
			ID:         result.EntityID,
			Name:       result.EntityName,
			Fallback:   result.Fallback,
			ForcedPick: result.ForcedPick,
			Items:      make([]itemReport, 0, len(result.Accepted)),
			Analysis:   analyses[result.EntityID],
		}
		for _, accepted := range result.Accepted {
			item := itemReport{
				Title:      accepted.Candidate.Title,
				Link:       accepted.Candidate.Link(),
				Publisher:  accepted.Candidate.Publisher,
				Summary:    accepted.Verdict.Summary,
				Reason:     accepted.Verdict.Reason,
				Importance: accepted.Verdict.Importance,
				ForcedPick: accepted.Verdict.ForcedPick,
			}
			if !accepted.Candidate.PublishedAt.IsZero() {
				published := accepted.Candidate.PublishedAt
				item.PublishedAt = &published
			}
			entity.Items = append(entity.Items, item)
		}
		doc.Entities = append(doc.Entities, entity)
	}
	return doc
}

func writeReportDocument(path string, doc reportDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write run report %s: %w", path, err)
	}
	return nil
}
