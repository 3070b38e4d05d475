package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/tickerbrief/internal/cache"
	"horse.fit/tickerbrief/internal/globaltime"
	"horse.fit/tickerbrief/internal/watchlist"
)

// FeedSource yields raw candidates covering the last windowDays days.
type FeedSource interface {
	Fetch(ctx context.Context, windowDays int) ([]Candidate, error)
}

// RunConfig bounds the two passes of a run.
type RunConfig struct {
	PrimaryWindowDays  int
	FallbackWindowDays int
	PrimaryCandidates  int
	FallbackCandidates int
}

func (c RunConfig) withDefaults() RunConfig {
	if c.PrimaryWindowDays <= 0 {
		c.PrimaryWindowDays = 7
	}
	if c.FallbackWindowDays <= 0 {
		c.FallbackWindowDays = 30
	}
	if c.PrimaryCandidates <= 0 {
		c.PrimaryCandidates = 60
	}
	if c.FallbackCandidates <= 0 {
		c.FallbackCandidates = 10
	}
	return c
}

// RunReport is the outcome of one full pipeline run.
type RunReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Entities   []EntityResult
	Stats      Stats
}

// Pipeline drives one run: fetch, deduplicate, resolve, filter, classify,
// escalate, and guarantee per-entity output.
type Pipeline struct {
	feeds      FeedSource
	resolver   *Resolver
	filter     *Filter
	classifier *Classifier
	store      *cache.Store
	doc        *watchlist.Document
	cfg        RunConfig
	logger     zerolog.Logger
}

func New(feeds FeedSource, resolver *Resolver, filter *Filter, classifier *Classifier, store *cache.Store, doc *watchlist.Document, cfg RunConfig, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		feeds:      feeds,
		resolver:   resolver,
		filter:     filter,
		classifier: classifier,
		store:      store,
		doc:        doc,
		cfg:        cfg.withDefaults(),
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes the strict primary pass, escalates entities that ended it
// empty to a relaxed wide-window pass, and finally force-picks for entities
// both passes left empty. Every entity with any matching candidate ends the
// run with at least one accepted item.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{StartedAt: globaltime.UTC(), Stats: Stats{}}

	primary, err := p.pass(ctx, p.cfg.PrimaryWindowDays, p.cfg.PrimaryCandidates, ModeStrict, p.doc.Entities)
	if err != nil {
		return nil, fmt.Errorf("primary pass: %w", err)
	}
	report.Stats.Merge(primary.stats)

	var needy []watchlist.Entity
	for _, entity := range p.doc.Entities {
		if len(primary.results[entity.ID].Accepted) == 0 {
			needy = append(needy, entity)
		}
	}

	var fallback *passResult
	if len(needy) > 0 {
		report.Stats.Add(StatFallbackEntities, len(needy))
		p.logger.Info().Int("entities", len(needy)).Msg("escalating to fallback window")

		fallback, err = p.pass(ctx, p.cfg.FallbackWindowDays, p.cfg.FallbackCandidates, ModeRelaxed, needy)
		if err != nil {
			return nil, fmt.Errorf("fallback pass: %w", err)
		}
		report.Stats.Merge(fallback.stats)
	}

	for _, entity := range p.doc.Entities {
		result := primary.results[entity.ID]
		if len(result.Accepted) == 0 && fallback != nil {
			if fb, ok := fallback.results[entity.ID]; ok {
				switch {
				case len(fb.Accepted) > 0:
					fb.Fallback = true
					result = fb
				case len(fb.Candidates) > 0:
					// Both passes empty; force-pick over the wider pool.
					result.Candidates = fb.Candidates
				}
			}
		}

		if len(result.Accepted) == 0 {
			if pick := ForcePick(result.Candidates, entity.Name, p.doc.HighValueKeywords); pick != nil {
				result.Accepted = append(result.Accepted, *pick)
				result.ForcedPick = true
				report.Stats.Add(StatForcedPick, 1)
				p.logger.Info().
					Str("entity", entity.ID).
					Str("title", pick.Candidate.Title).
					Msg("forced pick applied")
			}
		}
		report.Entities = append(report.Entities, *result)
	}

	report.FinishedAt = globaltime.UTC()
	return report, nil
}

type passResult struct {
	results map[string]*EntityResult
	stats   Stats
}

func (p *Pipeline) pass(ctx context.Context, windowDays, candidateCap int, mode Mode, entities []watchlist.Entity) (*passResult, error) {
	stats := Stats{}

	fetched, err := p.feeds.Fetch(ctx, windowDays)
	if err != nil {
		return nil, fmt.Errorf("fetch feeds: %w", err)
	}

	pool, fresh := p.dedupe(fetched, stats)

	resolved, resolveStats := p.resolver.ResolveAll(ctx, fresh)
	stats.Merge(resolveStats)
	pool = dedupeByLink(append(pool, resolved...), stats)

	kept, filterStats := p.filter.Apply(pool)
	stats.Merge(filterStats)
	p.cacheFresh(kept, fresh)

	result := &passResult{results: make(map[string]*EntityResult, len(entities)), stats: stats}
	for _, entity := range entities {
		entityResult, err := p.processEntity(ctx, entity, kept, candidateCap, mode, stats)
		if err != nil {
			return nil, err
		}
		result.results[entity.ID] = entityResult
	}
	return result, nil
}

// dedupe signs every fetched candidate, drops in-batch duplicates, and
// splits the remainder into cache hits (already resolved in a prior run)
// and fresh candidates that still need resolution.
func (p *Pipeline) dedupe(fetched []Candidate, stats Stats) (hits, fresh []Candidate) {
	seen := make(map[string]struct{}, len(fetched))
	for _, candidate := range fetched {
		candidate.Signature = Signature(candidate.Title, candidate.Publisher, candidate.PublishedAt, candidate.Summary)
		if _, dup := seen[candidate.Signature]; dup {
			stats.Add(StatDuplicateExcluded, 1)
			continue
		}
		seen[candidate.Signature] = struct{}{}

		if record, ok := p.store.GetItem(candidate.Signature); ok {
			stats.Add(StatCacheHit, 1)
			hits = append(hits, candidateFromRecord(record))
			continue
		}
		stats.Add(StatCacheMiss, 1)
		fresh = append(fresh, candidate)
	}
	return hits, fresh
}

// cacheFresh stores the filter survivors that were resolved this pass.
func (p *Pipeline) cacheFresh(kept, fresh []Candidate) {
	freshSigs := make(map[string]struct{}, len(fresh))
	for _, candidate := range fresh {
		freshSigs[candidate.Signature] = struct{}{}
	}
	for _, candidate := range kept {
		if _, ok := freshSigs[candidate.Signature]; !ok {
			continue
		}
		record := cache.ItemRecord{
			Signature: candidate.Signature,
			Title:     candidate.Title,
			RawLink:   candidate.RawLink,
			FinalLink: candidate.FinalLink,
			Summary:   candidate.Summary,
			Publisher: candidate.Publisher,
		}
		if !candidate.PublishedAt.IsZero() {
			published := candidate.PublishedAt
			record.PublishedAt = &published
		}
		p.store.PutItem(record)
	}
}

func (p *Pipeline) processEntity(ctx context.Context, entity watchlist.Entity, pool []Candidate, candidateCap int, mode Mode, stats Stats) (*EntityResult, error) {
	matched := make([]Candidate, 0, len(pool))
	terms := entity.MatchTerms()
	for _, candidate := range pool {
		for _, term := range terms {
			if candidate.ContainsFold(term) {
				matched = append(matched, candidate)
				break
			}
		}
	}
	sortNewestFirst(matched)
	if len(matched) > candidateCap {
		matched = matched[:candidateCap]
	}

	result := &EntityResult{
		EntityID:   entity.ID,
		EntityName: entity.Name,
		Candidates: matched,
	}
	if len(matched) == 0 {
		return result, nil
	}

	verdicts := make([]Verdict, len(matched))
	verdictStats := make([]Stats, len(matched))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.classifier.cfg.PoolWidth)
	for i, candidate := range matched {
		i, candidate := i, candidate
		group.Go(func() error {
			verdict, slot := p.classifier.Classify(groupCtx, candidate, entity.ID, entity.Name, mode)
			verdicts[i] = verdict
			verdictStats[i] = slot
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("classify entity %s: %w", entity.ID, err)
	}

	for i, verdict := range verdicts {
		stats.Merge(verdictStats[i])
		if verdict.IsRelevant {
			result.Accepted = append(result.Accepted, Accepted{Candidate: matched[i], Verdict: verdict})
		}
	}
	return result, nil
}

// dedupeByLink drops later candidates whose canonical link collides with an
// earlier one. Catches collisions between cache hits and freshly resolved
// items; in-batch collisions were already removed upstream.
func dedupeByLink(pool []Candidate, stats Stats) []Candidate {
	seen := make(map[string]struct{}, len(pool))
	kept := pool[:0]
	for _, candidate := range pool {
		link, _ := CanonicalURL(candidate.Link())
		if link == "" {
			link = candidate.Link()
		}
		if _, dup := seen[link]; dup {
			stats.Add(StatDuplicateExcluded, 1)
			continue
		}
		seen[link] = struct{}{}
		kept = append(kept, candidate)
	}
	return kept
}

func candidateFromRecord(record cache.ItemRecord) Candidate {
	candidate := Candidate{
		Title:     record.Title,
		RawLink:   record.RawLink,
		FinalLink: record.FinalLink,
		Summary:   record.Summary,
		Publisher: record.Publisher,
		Signature: record.Signature,
	}
	if record.PublishedAt != nil {
		candidate.PublishedAt = *record.PublishedAt
	}
	return candidate
}
