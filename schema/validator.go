// Package payloadschema validates the JSON documents that cross the
// process boundary: the watchlist configuration file supplied by the
// operator and the verdict payloads returned by the reasoning service.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed watchlist.schema.json
var watchlistSchemaJSON string

//go:embed verdict.schema.json
var verdictSchemaJSON string

// Watchlist is the wire shape of the watchlist configuration document.
type Watchlist struct {
	Stocks            map[string]WatchlistStock `json:"stocks"`
	Feeds             []string                  `json:"feeds"`
	DeniedDomains     []string                  `json:"denied_domains,omitempty"`
	DeniedPublishers  []string                  `json:"denied_publishers,omitempty"`
	Publishers        map[string]string         `json:"publishers,omitempty"`
	HighValueKeywords []string                  `json:"high_value_keywords,omitempty"`
}

type WatchlistStock struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords,omitempty"`
}

// Verdict is the wire shape of a reasoning-service relevance verdict.
type Verdict struct {
	IsRelevant bool   `json:"is_relevant"`
	Reason     string `json:"reason"`
	Summary    string `json:"summary"`
	Importance int    `json:"importance"`
}

var (
	watchlistOnce      sync.Once
	watchlistSchema    *jsonschema.Schema
	watchlistSchemaErr error

	verdictOnce      sync.Once
	verdictSchema    *jsonschema.Schema
	verdictSchemaErr error
)

func ValidateWatchlistPayload(payload json.RawMessage) (*Watchlist, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode watchlist JSON: %w", err)
	}

	schema, err := loadWatchlistSchema()
	if err != nil {
		return nil, fmt.Errorf("load watchlist schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("watchlist schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize watchlist JSON: %w", err)
	}

	var doc Watchlist
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal watchlist: %w", err)
	}

	if err := validateWatchlistSemantics(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

func ValidateVerdictPayload(payload json.RawMessage) (*Verdict, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode verdict JSON: %w", err)
	}

	schema, err := loadVerdictSchema()
	if err != nil {
		return nil, fmt.Errorf("load verdict schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("verdict schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize verdict JSON: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal(normalized, &verdict); err != nil {
		return nil, fmt.Errorf("unmarshal verdict: %w", err)
	}

	return &verdict, nil
}

func loadWatchlistSchema() (*jsonschema.Schema, error) {
	watchlistOnce.Do(func() {
		watchlistSchema, watchlistSchemaErr = compileSchema("watchlist.schema.json", watchlistSchemaJSON)
	})
	if watchlistSchemaErr != nil {
		return nil, watchlistSchemaErr
	}
	if watchlistSchema == nil {
		return nil, fmt.Errorf("watchlist schema not initialized")
	}
	return watchlistSchema, nil
}

func loadVerdictSchema() (*jsonschema.Schema, error) {
	verdictOnce.Do(func() {
		verdictSchema, verdictSchemaErr = compileSchema("verdict.schema.json", verdictSchemaJSON)
	})
	if verdictSchemaErr != nil {
		return nil, verdictSchemaErr
	}
	if verdictSchema == nil {
		return nil, fmt.Errorf("verdict schema not initialized")
	}
	return verdictSchema, nil
}

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}

	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateWatchlistSemantics(doc *Watchlist) error {
	if doc == nil {
		return fmt.Errorf("watchlist is nil")
	}
	if len(doc.Stocks) == 0 {
		return fmt.Errorf("stocks must not be empty")
	}
	for id, stock := range doc.Stocks {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("stock id must not be empty")
		}
		if strings.TrimSpace(stock.Name) == "" {
			return fmt.Errorf("stocks[%s].name must not be empty", id)
		}
		for i, keyword := range stock.Keywords {
			if strings.TrimSpace(keyword) == "" {
				return fmt.Errorf("stocks[%s].keywords[%d] must not be empty", id, i)
			}
		}
	}
	if len(doc.Feeds) == 0 {
		return fmt.Errorf("feeds must not be empty")
	}
	for i, feed := range doc.Feeds {
		if strings.TrimSpace(feed) == "" {
			return fmt.Errorf("feeds[%d] must not be empty", i)
		}
	}
	return nil
}
