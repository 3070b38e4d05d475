package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"horse.fit/tickerbrief/internal/auxreport"
	"horse.fit/tickerbrief/internal/cache"
	"horse.fit/tickerbrief/internal/cli"
	"horse.fit/tickerbrief/internal/config"
	"horse.fit/tickerbrief/internal/feed"
	"horse.fit/tickerbrief/internal/globaltime"
	"horse.fit/tickerbrief/internal/llm"
	"horse.fit/tickerbrief/internal/logging"
	"horse.fit/tickerbrief/internal/pipeline"
	"horse.fit/tickerbrief/internal/watchlist"
)

func runPipeline(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Command timeout")
	reportPath := fs.String("report", "", "Run report output path (overrides TB_REPORT_PATH)")
	skipAnalysis := fs.Bool("skip-analysis", false, "Skip per-entity situation reports")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	doc, err := watchlist.Load(cfg.WatchlistPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.WatchlistPath).Msg("watchlist load failed")
		fmt.Fprintf(os.Stderr, "Failed to load watchlist: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store := cache.NewStore(cfg.CachePath, cfg.RawItemTTL(), cfg.AnalysisTTL(), logger)
	store.Load()

	classifyLLM := llm.NewClient(cfg.AnthropicAPIKey, cfg.ClassifyModel, logger)

	pipe := pipeline.New(
		feed.NewFetcher(doc.Feeds, logger),
		pipeline.NewResolver(&http.Client{}, pipeline.ResolverConfig{
			PoolWidth:  cfg.ResolvePoolWidth,
			Timeout:    cfg.ResolveTimeout(),
			MaxPending: cfg.ResolveCap,
		}, logger),
		pipeline.NewFilter(doc.DeniedDomains, doc.DeniedPublishers, doc.Publishers, logger),
		pipeline.NewClassifier(classifyLLM, pipeline.ClassifierConfig{
			PoolWidth:         cfg.ClassifyPoolWidth,
			Timeout:           cfg.ClassifyTimeout(),
			RequestsPerSecond: cfg.ClassifyRequestsPerSecond,
		}, logger),
		store,
		doc,
		pipeline.RunConfig{
			PrimaryWindowDays:  cfg.PrimaryWindowDays,
			FallbackWindowDays: cfg.FallbackWindowDays,
			PrimaryCandidates:  cfg.PrimaryCandidateCap,
			FallbackCandidates: cfg.FallbackCandidateCap,
		},
		logger,
	)

	run, err := pipe.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline run failed")
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}

	analyses := map[string]*auxreport.Report{}
	if !*skipAnalysis {
		auxLLM := llm.NewClient(cfg.AnthropicAPIKey, cfg.AuxModel, logger)
		aux := auxreport.NewService(auxLLM, store, logger)
		for _, result := range run.Entities {
			if len(result.Accepted) == 0 {
				continue
			}
			headlines := make([]string, 0, len(result.Accepted))
			for _, accepted := range result.Accepted {
				headlines = append(headlines, accepted.Candidate.Title)
			}
			report := aux.Generate(ctx, result.EntityID, result.EntityName, headlines)
			analyses[result.EntityID] = &report
		}
	}

	removed := store.Sweep(globaltime.UTC())
	if err := store.Save(); err != nil {
		logger.Error().Err(err).Msg("cache save failed")
		fmt.Fprintf(os.Stderr, "Failed to save cache: %v\n", err)
		return 1
	}

	outPath := cfg.ReportPath
	if *reportPath != "" {
		outPath = *reportPath
	}
	if err := writeReportDocument(outPath, buildReportDocument(run, analyses)); err != nil {
		logger.Error().Err(err).Msg("report write failed")
		fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
		return 1
	}

	accepted := 0
	forced := 0
	for _, result := range run.Entities {
		accepted += len(result.Accepted)
		if result.ForcedPick {
			forced++
		}
	}
	logger.Info().
		Int("entities", len(run.Entities)).
		Int("accepted", accepted).
		Int("forced_picks", forced).
		Int("cache_swept", removed).
		Dur("elapsed", run.FinishedAt.Sub(run.StartedAt)).
		Msg("run complete")

	fmt.Printf("entities=%d accepted=%d forced_picks=%d report=%s\n", len(run.Entities), accepted, forced, outPath)
	for _, name := range run.Stats.Names() {
		fmt.Printf("stat %s=%d\n", name, run.Stats.Get(name))
	}
	return 0
}
