package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ResolverConfig bounds the redirect-resolution stage.
type ResolverConfig struct {
	PoolWidth  int
	Timeout    time.Duration
	MaxPending int
	// IndirectHosts lists aggregator hosts whose links are redirects that
	// must be followed before filtering. Links on other hosts pass through
	// untouched.
	IndirectHosts []string
}

func (c ResolverConfig) withDefaults() ResolverConfig {
	if c.PoolWidth <= 0 {
		c.PoolWidth = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 4 * time.Second
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 100
	}
	if len(c.IndirectHosts) == 0 {
		c.IndirectHosts = []string{"news.google.com"}
	}
	return c
}

// Resolver follows aggregator redirects to the publisher's own address and
// deduplicates candidates that converge on the same final link.
type Resolver struct {
	client   *http.Client
	cfg      ResolverConfig
	indirect map[string]struct{}
	logger   zerolog.Logger
}

func NewResolver(client *http.Client, cfg ResolverConfig, logger zerolog.Logger) *Resolver {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{}
	}
	indirect := make(map[string]struct{}, len(cfg.IndirectHosts))
	for _, host := range cfg.IndirectHosts {
		indirect[host] = struct{}{}
	}
	return &Resolver{
		client:   client,
		cfg:      cfg,
		indirect: indirect,
		logger:   logger.With().Str("component", "resolver").Logger(),
	}
}

// ResolveAll resolves the pending candidates and returns the survivors with
// FinalLink populated, plus the stage counters. Load-shedding keeps only the
// MaxPending newest inputs. A candidate whose resolution fails keeps its raw
// link; a candidate whose final link collides with an earlier one is dropped.
func (r *Resolver) ResolveAll(ctx context.Context, pending []Candidate) ([]Candidate, Stats) {
	stats := Stats{}
	if len(pending) == 0 {
		return nil, stats
	}

	work := make([]Candidate, len(pending))
	copy(work, pending)
	sortNewestFirst(work)
	if len(work) > r.cfg.MaxPending {
		r.logger.Warn().
			Int("pending", len(work)).
			Int("cap", r.cfg.MaxPending).
			Msg("resolution backlog over cap; shedding oldest")
		work = work[:r.cfg.MaxPending]
	}

	resolved := make([]Candidate, len(work))
	workerStats := make([]Stats, len(work))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.cfg.PoolWidth)
	for i, candidate := range work {
		i, candidate := i, candidate
		group.Go(func() error {
			slot := Stats{}
			resolved[i] = r.resolveOne(groupCtx, candidate, slot)
			workerStats[i] = slot
			return nil
		})
	}
	group.Wait()

	for _, slot := range workerStats {
		stats.Merge(slot)
	}

	seen := make(map[string]struct{}, len(resolved))
	kept := make([]Candidate, 0, len(resolved))
	for _, candidate := range resolved {
		canonical, _ := CanonicalURL(candidate.Link())
		if canonical == "" {
			canonical = candidate.Link()
		}
		if _, dup := seen[canonical]; dup {
			stats.Add(StatDuplicateExcluded, 1)
			r.logger.Debug().Str("link", candidate.Link()).Msg("duplicate final link dropped")
			continue
		}
		seen[canonical] = struct{}{}
		candidate.FinalLink = canonical
		kept = append(kept, candidate)
	}
	return kept, stats
}

func (r *Resolver) resolveOne(ctx context.Context, candidate Candidate, stats Stats) Candidate {
	if _, indirect := r.indirect[hostOf(candidate.RawLink)]; !indirect {
		return candidate
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	final, err := r.followRedirects(reqCtx, candidate.RawLink)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			stats.Add(StatResolveTimeout, 1)
		} else {
			stats.Add(StatResolveFailure, 1)
		}
		r.logger.Debug().Err(err).Str("link", candidate.RawLink).Msg("resolution failed; keeping raw link")
		return candidate
	}

	candidate.FinalLink = final
	return candidate
}

func (r *Resolver) followRedirects(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return resp.Request.URL.String(), nil
}
