package loadgen

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/besttime/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging sends log output to stdout and, when logFile is set, to that
// file as well. The returned closer releases the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w, closer = io.MultiWriter(os.Stdout, file), file
	}

	if err := logger.InitWithOptions(logger.WithWriter(w)); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ShowHelp prints usage information for the load tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`besttime load generator
=======================

Signs in players, submits random clear times concurrently and verifies the
leaderboard the service serves back.

Usage:
  loadgen [options]

Options:
  -url string         Base URL of the service (default "http://localhost:9080")
  -players int        Number of players to sign in (default 100)
  -submissions int    Clear times per player (default 5)
  -workers int        Concurrent workers (default 2 x CPUs)
  -min-ms int         Fastest generated clear time in ms (default 2000)
  -max-ms int         Slowest generated clear time in ms (default 120000)
  -seed uint          Generator seed, 0 for random
  -timeout duration   HTTP request timeout (default 10s)
  -output string      Write a JSON report to this file
  -log string         Also write logs to this file
  -verbose            Debug logging and full mismatch listing
  -help               Show this help

The service throttles submissions per player. Keep -submissions within the
configured burst or expect some 429s, which are counted but not failures.
`)
}
