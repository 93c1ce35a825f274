package model

import "time"

// Category groups games on the public site.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Game is a catalog item. Position is its 1-based slot in the public
// ordering; nil means the game is not placed.
type Game struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CategoryID string    `json:"categoryId,omitempty"`
	Position   *int      `json:"position,omitempty"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// GameFilter selects games for listing.
type GameFilter struct {
	CategoryID string
	Search     string
	ActiveOnly bool
	Page       int
	Limit      int
}

// CategoryFilter selects categories for listing.
type CategoryFilter struct {
	Search string
	Page   int
	Limit  int
}

// SystemConfig is an admin-managed key/value setting.
type SystemConfig struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CDNVersion is the published snapshot version served to clients.
type CDNVersion struct {
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	Enabled   bool      `json:"enabled"`
}
