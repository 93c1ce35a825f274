package loadgen

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultSettle        = 3 * time.Second
	PercentageMultiplier = 100
	maxCatalogPage       = 100
	reorderRounds        = 3
)
