// Package feed retrieves raw news candidates from the configured RSS
// feeds and normalizes them into pipeline input.
package feed

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/tickerbrief/internal/globaltime"
	"horse.fit/tickerbrief/internal/pipeline"
)

const (
	summaryMaxRunes = 300
	fetchTimeout    = 15 * time.Second
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	windowParamRegexp = regexp.MustCompile(`when:\d+d`)
)

// Fetcher pulls and normalizes items from a fixed feed list. Individual
// feed failures are logged and skipped; a pass only fails when every feed
// does.
type Fetcher struct {
	parser *gofeed.Parser
	feeds  []string
	logger zerolog.Logger
}

func NewFetcher(feeds []string, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		parser: gofeed.NewParser(),
		feeds:  feeds,
		logger: logger.With().Str("component", "feed").Logger(),
	}
}

// Fetch retrieves every configured feed concurrently and returns the items
// published within the last windowDays days. Items without a parseable
// publication date are dropped. Duplicate raw links across feeds are
// collapsed to the first occurrence.
func (f *Fetcher) Fetch(ctx context.Context, windowDays int) ([]pipeline.Candidate, error) {
	if len(f.feeds) == 0 {
		return nil, fmt.Errorf("no feeds configured")
	}
	cutoff := globaltime.UTC().AddDate(0, 0, -windowDays)

	var (
		mu         sync.Mutex
		candidates []pipeline.Candidate
		succeeded  int
	)
	seen := map[string]struct{}{}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, feedURL := range f.feeds {
		feedURL := feedURL
		group.Go(func() error {
			items, err := f.fetchOne(groupCtx, widenQueryWindow(feedURL, windowDays), cutoff)
			if err != nil {
				f.logger.Warn().Err(err).Str("feed", feedURL).Msg("feed fetch failed; skipping")
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			succeeded++
			for _, item := range items {
				if _, dup := seen[item.RawLink]; dup {
					continue
				}
				seen[item.RawLink] = struct{}{}
				candidates = append(candidates, item)
			}
			return nil
		})
	}
	group.Wait()

	if succeeded == 0 {
		return nil, fmt.Errorf("all %d feeds failed", len(f.feeds))
	}
	f.logger.Info().
		Int("feeds", succeeded).
		Int("items", len(candidates)).
		Int("window_days", windowDays).
		Msg("feeds fetched")
	return candidates, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, feedURL string, cutoff time.Time) ([]pipeline.Candidate, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	parsed, err := f.parser.ParseURLWithContext(feedURL, fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]pipeline.Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil || strings.TrimSpace(item.Link) == "" {
			continue
		}

		published, ok := itemPublishedAt(item)
		if !ok {
			f.logger.Debug().Str("title", item.Title).Msg("undated item dropped")
			continue
		}
		if published.Before(cutoff) {
			continue
		}

		title, publisher := splitDeclaredPublisher(item.Title, feedURL)
		if publisher == "" && parsed.Title != "" {
			publisher = strings.TrimSpace(parsed.Title)
		}

		items = append(items, pipeline.Candidate{
			Title:       title,
			RawLink:     strings.TrimSpace(item.Link),
			Summary:     summarize(item.Description),
			PublishedAt: published.UTC(),
			Publisher:   publisher,
		})
	}
	return items, nil
}

// widenQueryWindow rewrites an aggregator query feed's recency parameter to
// cover the requested window. Feeds without the parameter pass through.
func widenQueryWindow(feedURL string, windowDays int) string {
	if windowDays <= 7 {
		return feedURL
	}
	return windowParamRegexp.ReplaceAllString(feedURL, fmt.Sprintf("when:%dd", windowDays))
}

func itemPublishedAt(item *gofeed.Item) (time.Time, bool) {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed, true
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed, true
	}
	if strings.TrimSpace(item.Published) != "" {
		if t, err := dateparse.ParseAny(item.Published); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// splitDeclaredPublisher strips the " - Publisher" suffix that aggregator
// headlines carry and returns it separately. Non-aggregator feeds keep the
// title untouched.
func splitDeclaredPublisher(title, feedURL string) (string, string) {
	title = strings.TrimSpace(title)
	if !strings.Contains(feedURL, "news.google.com") {
		return title, ""
	}
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 {
		return title, ""
	}
	return strings.TrimSpace(title[:idx]), strings.TrimSpace(title[idx+3:])
}

func summarize(description string) string {
	text := htmlTagPattern.ReplaceAllString(description, " ")
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > summaryMaxRunes {
		return string(runes[:summaryMaxRunes])
	}
	return text
}
