// Package watchlist loads the externally supplied run configuration: the
// tracked entities, the feed list, and the filter/keyword tables.
package watchlist

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	payloadschema "horse.fit/tickerbrief/schema"
)

// Entity is one tracked equity. Read-only to the pipeline.
type Entity struct {
	ID       string
	Name     string
	Keywords []string
}

// Document is the parsed watchlist configuration.
type Document struct {
	Entities          []Entity
	Feeds             []string
	DeniedDomains     []string
	DeniedPublishers  []string
	Publishers        map[string]string
	HighValueKeywords []string
}

// defaultHighValueKeywords backs the forced-pick ladder when the document
// does not override the table.
var defaultHighValueKeywords = []string{
	"營收", "法說會", "財測", "展望", "接單", "CapEx",
	"DRAM", "NAND", "HBM", "CoWoS", "關稅", "管制", "EPS", "獲利",
}

func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Document, error) {
	payload, err := payloadschema.ValidateWatchlistPayload(json.RawMessage(raw))
	if err != nil {
		return nil, fmt.Errorf("validate watchlist: %w", err)
	}

	entities := make([]Entity, 0, len(payload.Stocks))
	for id, stock := range payload.Stocks {
		entities = append(entities, Entity{
			ID:       strings.TrimSpace(id),
			Name:     strings.TrimSpace(stock.Name),
			Keywords: trimAll(stock.Keywords),
		})
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })

	doc := &Document{
		Entities:          entities,
		Feeds:             trimAll(payload.Feeds),
		DeniedDomains:     lowerAll(payload.DeniedDomains),
		DeniedPublishers:  trimAll(payload.DeniedPublishers),
		Publishers:        lowerKeys(payload.Publishers),
		HighValueKeywords: trimAll(payload.HighValueKeywords),
	}
	if len(doc.HighValueKeywords) == 0 {
		doc.HighValueKeywords = append([]string(nil), defaultHighValueKeywords...)
	}
	return doc, nil
}

// MatchTerms returns the case-insensitive terms that gate candidates for
// the entity: display name, id, and configured keywords.
func (e Entity) MatchTerms() []string {
	terms := make([]string, 0, len(e.Keywords)+2)
	terms = append(terms, e.Name, e.ID)
	terms = append(terms, e.Keywords...)
	return terms
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.ToLower(strings.TrimSpace(v)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func lowerKeys(values map[string]string) map[string]string {
	if len(values) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(v)
	}
	return out
}
