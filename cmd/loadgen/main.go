// Command loadgen exercises a running besttime service and verifies its
// leaderboard.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/besttime/internal/loadgen"
)

// Default configuration constants.
const (
	defaultPlayers     = 100
	defaultSubmissions = 5
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultMinMs       = 2000
	defaultMaxMs       = 120000
	defaultTimeout     = 10 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		players     = flag.Int("players", defaultPlayers, "Number of players to sign in")
		submissions = flag.Int("submissions", defaultSubmissions, "Clear times submitted per player")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		minMs       = flag.Int64("min-ms", defaultMinMs, "Fastest generated clear time in milliseconds")
		maxMs       = flag.Int64("max-ms", defaultMaxMs, "Slowest generated clear time in milliseconds")
		seed        = flag.Uint64("seed", 0, "Generator seed, 0 for random")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile  = flag.String("output", "", "Write a JSON report to this file")
		logFile     = flag.String("log", "", "Also write logs to this file")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return 0
	}

	closer, err := loadgen.SetupLogging(*logFile, *verbose)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &loadgen.Config{
		BaseURL:     *baseURL,
		Players:     *players,
		Submissions: *submissions,
		Workers:     *workers,
		Timeout:     *timeout,
		MinMs:       *minMs,
		MaxMs:       *maxMs,
		Seed:        *seed,
		OutputFile:  *outputFile,
		Verbose:     *verbose,
	}

	if _, err := loadgen.Run(ctx, cfg); err != nil {
		_, _ = os.Stderr.WriteString("Load test failed: " + err.Error() + "\n")
		if errors.Is(err, loadgen.ErrVerification) {
			return 2
		}
		return 1
	}
	return 0
}
