// Package loadgen drives a running service with generated usage sessions,
// clicks and reorders, then verifies that retention held.
package loadgen

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/arcade/pkg/logger"
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		logFile = "loadgen_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`Arcade Load Generator
=====================

Submits usage sessions around the 30s retention threshold, finalizes them,
records clicks and reorders, then checks that short game sessions were
pruned and everything else was kept.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -snapshot string
        Edge base URL for catalog snapshots (default: read the API)
  -sessions int
        Number of sessions to generate (default 1000)
  -games int
        Games to seed when the catalog is empty (default 10)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        Wait before verification (default 3s)
  -output string
        Output file for generated sessions
  -log string
        Log file (default: loadgen_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message
`)
}
