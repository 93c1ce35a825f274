package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/arcade/internal/loadgen"
)

// Default configuration constants.
const (
	defaultSessions = 1000
	defaultGames    = 10
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultTimeout  = 30 * time.Second
	defaultRunLimit = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		snapshotURL = flag.String("snapshot", "", "Edge base URL for catalog snapshots")
		sessions    = flag.Int("sessions", defaultSessions, "Number of sessions to generate")
		games       = flag.Int("games", defaultGames, "Games to seed when the catalog is empty")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle      = flag.Duration("settle", loadgen.DefaultSettle, "Wait before verification")
		outputFile  = flag.String("output", "", "Output file for generated sessions")
		logFile     = flag.String("log", "", "Log file (default: loadgen_TIMESTAMP.log)")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	closer, err := loadgen.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	config := &loadgen.Config{
		BaseURL:         *baseURL,
		SnapshotBaseURL: *snapshotURL,
		Sessions:        *sessions,
		Games:           *games,
		Workers:         *workers,
		Timeout:         *timeout,
		Settle:          *settle,
		OutputFile:      *outputFile,
		Verbose:         *verbose,
	}

	if _, err := loadgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
