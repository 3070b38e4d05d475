// Package app wires configuration, watchlist, cache, feeds, and the
// pipeline into CLI commands.
package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "run":
		return runPipeline(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "sweep":
		return runSweep(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "tickerbrief CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  tickerbrief <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  run       Fetch, classify, and report news for the watchlist")
	fmt.Fprintln(os.Stderr, "  validate  Validate a watchlist JSON file against the schema")
	fmt.Fprintln(os.Stderr, "  sweep     Age expired records out of the cache snapshot")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"tickerbrief <command> -h\" for command-specific flags.")
}
