package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/snapshot"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run executes the complete load run.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("loadgen")

	log.Info(ctx, "starting arcade load run",
		logger.String("baseURL", config.BaseURL),
		logger.String("snapshotBaseURL", config.SnapshotBaseURL),
		logger.Int("sessions", config.Sessions),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Bool("verbose", config.Verbose))

	if config.Workers < 1 {
		config.Workers = 1
	}
	client := newHTTPClient(config.BaseURL, config.Timeout)
	reader := snapshot.NewReader(
		snapshot.NewState(config.SnapshotBaseURL != "", config.SnapshotBaseURL, config.Timeout),
		snapshot.WithAPIBase(config.BaseURL),
		snapshot.WithLogger(log.Named("snapshot")),
	)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Read the catalog, seeding it when empty
	games, err := readCatalog(ctx, reader, client, stats)
	if err != nil {
		return stats, fmt.Errorf("catalog read failed: %w", err)
	}
	if len(games) == 0 {
		if games, err = seedGames(ctx, client, games, config.Games, stats); err != nil {
			return stats, fmt.Errorf("catalog seeding failed: %w", err)
		}
	}

	// Step 3: Generate, submit and finalize sessions
	sessions := generateSessions(ctx, config.Sessions, games, time.Now(), stats)
	submitSessions(ctx, config, client, sessions, stats)

	// Step 4: Clicks and reorders
	clicks := recordClicks(ctx, config, client, sessions, games, stats)
	if err := reorderGames(ctx, client, games, stats); err != nil {
		return stats, fmt.Errorf("reorder failed: %w", err)
	}

	// Step 5: Wait for the workers to drain the queue
	if config.Settle > 0 {
		log.Info(ctx, "waiting for events to be processed", logger.Duration("settle", config.Settle))
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(config.Settle):
		}
	}

	// Step 6: Verify results
	verifyErr := verifyResults(ctx, client, sessions, clicks, stats)

	// Step 7: Save sessions to file
	if config.OutputFile != "" {
		if err := saveSessionsToFile(ctx, config.OutputFile, sessions); err != nil {
			log.Warn(ctx, "failed to save sessions to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats, reader.State().Stats())

	if verifyErr != nil {
		return stats, fmt.Errorf("result verification failed: %w", verifyErr)
	}
	log.Info(ctx, "load run completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	code, _, err := client.Do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", code)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveSessionsToFile writes the generated sessions as a JSON array.
func saveSessionsToFile(ctx context.Context, filename string, sessions []Session) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "sessions saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats, snap snapshot.Stats) {
	var pruneRate, sessionsPerSecond float64
	if stats.Submitted > 0 {
		pruneRate = float64(stats.FinalizePruned) / float64(stats.Submitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		sessionsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.String("catalogSource", stats.CatalogSource),
		logger.Int64("snapshotHits", snap.SnapshotHits),
		logger.Int64("originHits", snap.OriginHits),
		logger.Int("gamesSeeded", stats.GamesSeeded),
		logger.Int("sessionsGenerated", stats.SessionsGenerated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("submitFailed", stats.SubmitFailed),
		logger.Int("finalized", stats.Finalized),
		logger.Int("pruned", stats.FinalizePruned),
		logger.Int("finalizeFailed", stats.FinalizeFailed),
		logger.Int("clicks", stats.Clicks),
		logger.Int("reorders", stats.Reorders),
		logger.Int("mismatches", stats.Mismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("pruneRate", pruneRate),
		logger.Float64("sessionsPerSecond", sessionsPerSecond))
}
