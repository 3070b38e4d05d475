package pipeline

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/tickerbrief/internal/cache"
	"horse.fit/tickerbrief/internal/watchlist"
)

type fakeFeed struct {
	byWindow map[int][]Candidate
}

func (f *fakeFeed) Fetch(ctx context.Context, windowDays int) ([]Candidate, error) {
	out := make([]Candidate, len(f.byWindow[windowDays]))
	copy(out, f.byWindow[windowDays])
	return out, nil
}

// scriptedCompleter answers by the first key found in the user prompt,
// falling back to a rejection.
type scriptedCompleter struct {
	byKey map[string]string
}

func (s *scriptedCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	for key, response := range s.byKey {
		if strings.Contains(user, key) {
			return response, nil
		}
	}
	return `{"is_relevant": false, "reason": "無關", "summary": "", "importance": 1}`, nil
}

const acceptVerdict = `{"is_relevant": true, "reason": "直接相關", "summary": "摘要", "importance": 4}`

func testPipeline(t *testing.T, feeds FeedSource, completer Completer, doc *watchlist.Document) (*Pipeline, *cache.Store) {
	t.Helper()

	store := cache.NewStore(filepath.Join(t.TempDir(), "cache.json"), 30*24*time.Hour, 10*24*time.Hour, zerolog.Nop())
	classifier := NewClassifier(completer, ClassifierConfig{PoolWidth: 5, Timeout: time.Second, RequestsPerSecond: 1000}, zerolog.Nop())
	resolver := NewResolver(&http.Client{}, ResolverConfig{}, zerolog.Nop())
	filter := NewFilter(doc.DeniedDomains, doc.DeniedPublishers, doc.Publishers, zerolog.Nop())

	return New(feeds, resolver, filter, classifier, store, doc, RunConfig{}, zerolog.Nop()), store
}

func transcendDoc() *watchlist.Document {
	return &watchlist.Document{
		Entities: []watchlist.Entity{{ID: "2451", Name: "創見", Keywords: []string{"記憶體模組"}}},
		Feeds:    []string{"https://feeds.example.com/a"},
		Publishers: map[string]string{
			"news.example.com":   "鉅亨網",
			"mirror.example.com": "鏡報",
		},
		HighValueKeywords: []string{"營收", "法說會", "財測", "HBM"},
	}
}

func TestRunAcceptsInPrimaryPass(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	feeds := &fakeFeed{byWindow: map[int][]Candidate{
		7: {
			{Title: "創見公布新產品", RawLink: "https://news.example.com/1", PublishedAt: now.AddDate(0, 0, -1)},
		},
	}}
	completer := &scriptedCompleter{byKey: map[string]string{"創見公布新產品": acceptVerdict}}

	pipe, _ := testPipeline(t, feeds, completer, transcendDoc())

	report, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Entities) != 1 {
		t.Fatalf("entities = %d, want 1", len(report.Entities))
	}

	result := report.Entities[0]
	if len(result.Accepted) != 1 {
		t.Fatalf("accepted = %d, want 1", len(result.Accepted))
	}
	if result.Fallback || result.ForcedPick {
		t.Fatalf("primary acceptance flagged fallback=%t forced=%t", result.Fallback, result.ForcedPick)
	}
	if report.Stats.Get(StatFallbackEntities) != 0 {
		t.Fatalf("fallback_entities = %d, want 0", report.Stats.Get(StatFallbackEntities))
	}
}

func TestRunEscalatesToFallbackWithRelaxedRescue(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	primary := []Candidate{
		{Title: "創見股價小漲", RawLink: "https://news.example.com/1", PublishedAt: now.AddDate(0, 0, -1)},
		{Title: "創見參加展會", RawLink: "https://news.example.com/2", PublishedAt: now.AddDate(0, 0, -2)},
		{Title: "創見新款隨身碟上市", RawLink: "https://news.example.com/3", PublishedAt: now.AddDate(0, 0, -3)},
	}
	older := Candidate{Title: "創見法說會釋出樂觀展望", RawLink: "https://news.example.com/4", PublishedAt: now.AddDate(0, 0, -20)}

	feeds := &fakeFeed{byWindow: map[int][]Candidate{
		7:  primary,
		30: append(append([]Candidate{}, primary...), older),
	}}
	// Every verdict is negative; only the relaxed delayed-value rule can
	// admit the older earnings-call headline.
	completer := &scriptedCompleter{}

	pipe, _ := testPipeline(t, feeds, completer, transcendDoc())

	report, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	result := report.Entities[0]
	if len(result.Accepted) != 1 {
		t.Fatalf("accepted = %d, want 1", len(result.Accepted))
	}
	if result.Accepted[0].Candidate.Title != "創見法說會釋出樂觀展望" {
		t.Fatalf("accepted %q, want the earnings-call headline", result.Accepted[0].Candidate.Title)
	}
	if !result.Fallback {
		t.Fatalf("result not flagged as fallback")
	}
	if result.ForcedPick || result.Accepted[0].Verdict.ForcedPick {
		t.Fatalf("relaxed acceptance flagged as forced pick")
	}
	if report.Stats.Get(StatFallbackEntities) != 1 {
		t.Fatalf("fallback_entities = %d, want 1", report.Stats.Get(StatFallbackEntities))
	}
	if report.Stats.Get(StatForcedPick) != 0 {
		t.Fatalf("forced_pick = %d, want 0", report.Stats.Get(StatForcedPick))
	}
}

func TestRunForcesPickWhenBothPassesEmpty(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	pool := []Candidate{
		{Title: "創見股價小漲", RawLink: "https://news.example.com/1", PublishedAt: now.AddDate(0, 0, -1)},
		{Title: "創見參加展會", RawLink: "https://news.example.com/2", PublishedAt: now.AddDate(0, 0, -2)},
	}
	feeds := &fakeFeed{byWindow: map[int][]Candidate{7: pool, 30: pool}}
	completer := &scriptedCompleter{}

	pipe, _ := testPipeline(t, feeds, completer, transcendDoc())

	report, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	result := report.Entities[0]
	if len(result.Accepted) != 1 {
		t.Fatalf("accepted = %d, want 1 forced pick", len(result.Accepted))
	}
	if !result.ForcedPick || !result.Accepted[0].Verdict.ForcedPick {
		t.Fatalf("forced pick not flagged: %+v", result)
	}
	if result.Accepted[0].Candidate.Title != "創見股價小漲" {
		t.Fatalf("forced pick %q, want newest title-matching candidate", result.Accepted[0].Candidate.Title)
	}
	if report.Stats.Get(StatForcedPick) != 1 {
		t.Fatalf("forced_pick = %d, want 1", report.Stats.Get(StatForcedPick))
	}
}

func TestRunEntityWithNoCandidatesStaysEmpty(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeed{byWindow: map[int][]Candidate{}}
	pipe, _ := testPipeline(t, feeds, &scriptedCompleter{}, transcendDoc())

	report, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	result := report.Entities[0]
	if len(result.Accepted) != 0 {
		t.Fatalf("accepted = %d, want 0", len(result.Accepted))
	}
	if result.ForcedPick {
		t.Fatalf("forced pick flagged with no candidates")
	}
}

func TestRunKeywordGateExcludesUnrelated(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	feeds := &fakeFeed{byWindow: map[int][]Candidate{
		7: {
			{Title: "無關個股消息", RawLink: "https://news.example.com/1", PublishedAt: now.AddDate(0, 0, -1)},
			{Title: "記憶體模組需求回溫", RawLink: "https://news.example.com/2", PublishedAt: now.AddDate(0, 0, -1)},
		},
	}}
	completer := &scriptedCompleter{byKey: map[string]string{
		"記憶體模組需求回溫": acceptVerdict,
		"無關個股消息":    acceptVerdict,
	}}

	pipe, _ := testPipeline(t, feeds, completer, transcendDoc())

	report, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	result := report.Entities[0]
	if len(result.Accepted) != 1 {
		t.Fatalf("accepted = %d, want only the keyword-gated candidate", len(result.Accepted))
	}
	if result.Accepted[0].Candidate.Title != "記憶體模組需求回溫" {
		t.Fatalf("accepted %q", result.Accepted[0].Candidate.Title)
	}
}

func TestRunCachesResolvedItems(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	feeds := &fakeFeed{byWindow: map[int][]Candidate{
		7: {
			{Title: "創見公布新產品", RawLink: "https://news.example.com/1", PublishedAt: now.AddDate(0, 0, -1)},
		},
	}}
	completer := &scriptedCompleter{byKey: map[string]string{"創見公布新產品": acceptVerdict}}

	pipe, store := testPipeline(t, feeds, completer, transcendDoc())

	first, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Stats.Get(StatCacheHit) != 0 {
		t.Fatalf("first run cache_hit = %d, want 0", first.Stats.Get(StatCacheHit))
	}
	if store.ItemCount() != 1 {
		t.Fatalf("cached items = %d, want 1", store.ItemCount())
	}

	second, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Stats.Get(StatCacheHit) != 1 {
		t.Fatalf("second run cache_hit = %d, want 1", second.Stats.Get(StatCacheHit))
	}
	if second.Stats.Get(StatCacheMiss) != 0 {
		t.Fatalf("second run cache_miss = %d, want 0", second.Stats.Get(StatCacheMiss))
	}
}

func TestRunDropsInBatchDuplicates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	feeds := &fakeFeed{byWindow: map[int][]Candidate{
		7: {
			{Title: "創見公布新產品", RawLink: "https://news.example.com/1", Publisher: "鉅亨網", PublishedAt: now},
			{Title: "創見公布新產品!", RawLink: "https://mirror.example.com/1", Publisher: "鉅亨網", PublishedAt: now.Add(2 * time.Hour)},
		},
	}}
	completer := &scriptedCompleter{byKey: map[string]string{"創見公布新產品": acceptVerdict}}

	pipe, _ := testPipeline(t, feeds, completer, transcendDoc())

	report, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Stats.Get(StatDuplicateExcluded) != 1 {
		t.Fatalf("duplicate_excluded = %d, want 1", report.Stats.Get(StatDuplicateExcluded))
	}
	if got := len(report.Entities[0].Accepted); got != 1 {
		t.Fatalf("accepted = %d, want 1", got)
	}
}
