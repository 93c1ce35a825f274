// Package model contains domain models passed between layers.
package model

import "time"

// ActivityType names what a usage event records.
type ActivityType string

// Known activity types. Only events tied to a game are ever pruned.
const (
	ActivityGamePlay ActivityType = "Game Play"
	ActivityLogin    ActivityType = "Login"
	ActivitySignup   ActivityType = "Signup"
	ActivityLogout   ActivityType = "Logout"
	ActivityPageView ActivityType = "Page View"
)

// ActivityTypes lists every accepted activity type.
var ActivityTypes = []ActivityType{
	ActivityGamePlay,
	ActivityLogin,
	ActivitySignup,
	ActivityLogout,
	ActivityPageView,
}

// Valid reports whether a is one of ActivityTypes.
func (a ActivityType) Valid() bool {
	for _, t := range ActivityTypes {
		if a == t {
			return true
		}
	}
	return false
}

// UsageEvent is one user or anonymous session activity.
type UsageEvent struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId,omitempty"`
	SessionID    string       `json:"sessionId,omitempty"`
	GameID       string       `json:"gameId,omitempty"`
	ActivityType ActivityType `json:"activityType"`
	StartTime    time.Time    `json:"startTime"`
	EndTime      *time.Time   `json:"endTime,omitempty"`
	SessionCount int          `json:"sessionCount"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// SubjectID returns the identity the event is attributed to.
func (e *UsageEvent) SubjectID() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.SessionID
}

// Duration returns endTime-startTime, or false while the session is open.
func (e *UsageEvent) Duration() (time.Duration, bool) {
	if e.EndTime == nil {
		return 0, false
	}
	return e.EndTime.Sub(e.StartTime), true
}

// UsagePatch is a partial update of a persisted event.
type UsagePatch struct {
	GameID       *string       `json:"gameId,omitempty"`
	ActivityType *ActivityType `json:"activityType,omitempty"`
	EndTime      *time.Time    `json:"endTime,omitempty"`
	SessionCount *int          `json:"sessionCount,omitempty"`
}

// UsageFilter selects events for reads and aggregates.
type UsageFilter struct {
	UserID       string
	SessionID    string
	GameID       string
	ActivityType ActivityType
	From         *time.Time
	To           *time.Time
	Page         int
	Limit        int
}
