package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/tickerbrief/internal/watchlist"
)

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	path := fs.String("watchlist", "watchlist.json", "Path to the watchlist JSON file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	doc, err := watchlist.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid watchlist: %v\n", err)
		return 2
	}

	fmt.Printf("watchlist ok: %d entities, %d feeds\n", len(doc.Entities), len(doc.Feeds))
	for _, entity := range doc.Entities {
		fmt.Printf("  %s %s (%d keywords)\n", entity.ID, entity.Name, len(entity.Keywords))
	}
	return 0
}
