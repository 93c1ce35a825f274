// Package types contains read models shared by the service and the API.
package types

import "time"

// Page is one page of a listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// TotalPages returns the number of pages for the listing.
func (p Page[T]) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// PositionPerformance aggregates clicks for one slot across all games that held it.
type PositionPerformance struct {
	Position        int       `json:"position"`
	TotalClicks     int64     `json:"totalClicks"`
	GameCount       int       `json:"gameCount"`
	AvgClicksByGame float64   `json:"avgClicksPerGame"`
	ShareOfClicks   float64   `json:"shareOfClicks"`
	LastClickedAt   time.Time `json:"lastClickedAt"`
}

// GamePositionStat is one (game, position) row with its share of the game's clicks.
type GamePositionStat struct {
	Position      int       `json:"position"`
	ClickCount    int64     `json:"clickCount"`
	ShareOfClicks float64   `json:"shareOfClicks"`
	LastClickedAt time.Time `json:"lastClickedAt"`
}

// GameHistory summarises how one game performed across the positions it held.
type GameHistory struct {
	GameID      string             `json:"gameId"`
	TotalClicks int64              `json:"totalClicks"`
	Positions   []GamePositionStat `json:"positions"`
}

// RecentActivity lists history rows clicked inside a time window.
type RecentActivity struct {
	Since       time.Time     `json:"since"`
	TotalClicks int64         `json:"totalClicks"`
	Rows        []RecentClick `json:"rows"`
}

// RecentClick is a history row touched inside the recent window.
type RecentClick struct {
	GameID        string    `json:"gameId"`
	Position      int       `json:"position"`
	ClickCount    int64     `json:"clickCount"`
	LastClickedAt time.Time `json:"lastClickedAt"`
}

// UsageGroup is an aggregate bucket of usage events.
type UsageGroup struct {
	Key           string  `json:"key"`
	Count         int64   `json:"count"`
	Finished      int64   `json:"finished"`
	TotalSeconds  float64 `json:"totalSeconds"`
	AvgSeconds    float64 `json:"avgSeconds"`
	TotalSessions int64   `json:"totalSessions"`
}

// UsageStats aggregates usage events matching a filter.
type UsageStats struct {
	UsageGroup
	ByActivity []UsageGroup `json:"byActivity"`
	ByGame     []UsageGroup `json:"byGame"`
}

// ServiceStats is the runtime view returned by /stats.
type ServiceStats struct {
	QueueDepth    int     `json:"queueDepth"`
	WorkerCount   int     `json:"workerCount"`
	Accepted      int64   `json:"accepted"`
	Persisted     int64   `json:"persisted"`
	Pruned        int64   `json:"pruned"`
	Failed        int64   `json:"failed"`
	InFlight      int     `json:"inFlight"`
	Pending       int     `json:"pending"`
	CacheEntries  int     `json:"cacheEntries"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	// Published snapshot version and flag, as served by /cdn/version.
	SnapshotVersion int64 `json:"snapshotVersion"`
	SnapshotEnabled bool  `json:"snapshotEnabled"`
}
