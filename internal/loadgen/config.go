package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL         string        // Base URL of the service
	SnapshotBaseURL string        // Edge base URL for catalog snapshots; empty reads the API
	Sessions        int           // Number of sessions to generate
	Games           int           // Games to seed when the catalog is empty
	Workers         int           // Number of concurrent workers
	Timeout         time.Duration // HTTP request timeout
	Settle          time.Duration // Wait before verification so workers drain the queue
	OutputFile      string        // Output file for generated sessions; empty skips saving
	Verbose         bool          // Enable verbose logging
}

// Session is one generated usage session and the outcome expected for it.
type Session struct {
	ID           string        `json:"id,omitempty"`
	SessionID    string        `json:"sessionId"`
	GameID       string        `json:"gameId,omitempty"`
	ActivityType string        `json:"activityType"`
	StartTime    time.Time     `json:"startTime"`
	Duration     time.Duration `json:"duration"`
	ExpectPruned bool          `json:"expectPruned"`
}

// EndTime is StartTime plus Duration.
func (s Session) EndTime() time.Time { return s.StartTime.Add(s.Duration) }

// Game is the catalog view the generator needs.
type Game struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Position *int   `json:"position,omitempty"`
	IsActive bool   `json:"isActive"`
}

// Stats holds run statistics.
type Stats struct {
	CatalogSource     string
	GamesSeeded       int
	SessionsGenerated int
	Submitted         int
	SubmitFailed      int
	Finalized         int
	FinalizePruned    int
	FinalizeFailed    int
	Clicks            int
	Reorders          int
	VerifiedKept      int
	VerifiedPruned    int
	Mismatches        int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
