// Package usage holds the rules applied to usage events: what a valid
// submission looks like and when a finished session is discarded.
package usage

import (
	"time"

	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/internal/domain/model"
)

// MinGameSession is the shortest game session that is kept once its end
// time is known.
const MinGameSession = 30 * time.Second

// Submission is the input accepted by the ingestion pipeline.
type Submission struct {
	UserID       string             `json:"userId,omitempty"`
	SessionID    string             `json:"sessionId,omitempty"`
	GameID       string             `json:"gameId,omitempty"`
	ActivityType model.ActivityType `json:"activityType"`
	StartTime    time.Time          `json:"startTime"`
	EndTime      *time.Time         `json:"endTime,omitempty"`
	SessionCount int                `json:"sessionCount,omitempty"`
}

// Validate rejects submissions that cannot be accepted. All problems are
// reported at once as field errors on a BadRequest.
func (s Submission) Validate() error {
	const op = "usage.Validate"

	var fields []apperr.FieldError
	if s.UserID == "" && s.SessionID == "" {
		fields = append(fields, apperr.FieldError{Field: "sessionId", Message: "userId or sessionId is required"})
	}
	if !s.ActivityType.Valid() {
		fields = append(fields, apperr.FieldError{Field: "activityType", Message: "unknown activity type"})
	}
	if s.StartTime.IsZero() {
		fields = append(fields, apperr.FieldError{Field: "startTime", Message: "startTime is required"})
	}
	if s.EndTime != nil && !s.StartTime.IsZero() && s.EndTime.Before(s.StartTime) {
		fields = append(fields, apperr.FieldError{Field: "endTime", Message: "endTime must not be before startTime"})
	}
	if s.SessionCount < 0 {
		fields = append(fields, apperr.FieldError{Field: "sessionCount", Message: "sessionCount must not be negative"})
	}
	if len(fields) > 0 {
		return apperr.Invalid(op, fields...)
	}
	return nil
}

// Event builds the event that will be persisted under id.
func (s Submission) Event(id string, now time.Time) model.UsageEvent {
	count := s.SessionCount
	if count == 0 {
		count = 1
	}
	return model.UsageEvent{
		ID:           id,
		UserID:       s.UserID,
		SessionID:    s.SessionID,
		GameID:       s.GameID,
		ActivityType: s.ActivityType,
		StartTime:    s.StartTime.UTC(),
		EndTime:      utcPtr(s.EndTime),
		SessionCount: count,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ShouldPrune reports whether a finished game session is too short to keep.
// Events without a game and events that are still open are never pruned.
func ShouldPrune(e model.UsageEvent) bool {
	if e.GameID == "" {
		return false
	}
	d, ok := e.Duration()
	if !ok {
		return false
	}
	return d < MinGameSession
}

// Apply merges a patch into e and reports whether the pruning rule has to be
// re-evaluated (end time or session count changed).
func Apply(e *model.UsageEvent, p model.UsagePatch, now time.Time) (recheck bool, err error) {
	const op = "usage.Apply"

	if p.GameID != nil {
		e.GameID = *p.GameID
		recheck = true
	}
	if p.ActivityType != nil {
		if !p.ActivityType.Valid() {
			return false, apperr.Invalid(op, apperr.FieldError{Field: "activityType", Message: "unknown activity type"})
		}
		e.ActivityType = *p.ActivityType
	}
	if p.EndTime != nil {
		end := p.EndTime.UTC()
		if end.Before(e.StartTime) {
			return false, apperr.Invalid(op, apperr.FieldError{Field: "endTime", Message: "endTime must not be before startTime"})
		}
		e.EndTime = &end
		recheck = true
	}
	if p.SessionCount != nil {
		if *p.SessionCount < 0 {
			return false, apperr.Invalid(op, apperr.FieldError{Field: "sessionCount", Message: "sessionCount must not be negative"})
		}
		e.SessionCount = *p.SessionCount
		recheck = true
	}
	e.UpdatedAt = now
	return recheck, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
