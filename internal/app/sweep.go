package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/tickerbrief/internal/cache"
	"horse.fit/tickerbrief/internal/cli"
	"horse.fit/tickerbrief/internal/config"
	"horse.fit/tickerbrief/internal/globaltime"
	"horse.fit/tickerbrief/internal/logging"
)

func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

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

	store := cache.NewStore(cfg.CachePath, cfg.RawItemTTL(), cfg.AnalysisTTL(), logger)
	store.Load()

	removed := store.Sweep(globaltime.UTC())
	if err := store.Save(); err != nil {
		logger.Error().Err(err).Msg("cache save failed")
		fmt.Fprintf(os.Stderr, "Failed to save cache: %v\n", err)
		return 1
	}

	fmt.Printf("removed=%d items=%d analyses=%d\n", removed, store.ItemCount(), store.AnalysisCount())
	return 0
}
