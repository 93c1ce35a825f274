package loadgen

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/okian/arcade/internal/domain/model"
	"github.com/okian/arcade/internal/domain/usage"
	"github.com/okian/arcade/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	profileDivisor     = 8
)

// Duration buckets, in seconds. Borderline sessions straddle the threshold.
const (
	shortMin      = 1.0
	shortRange    = 27.0
	borderMin     = 28.0
	borderRange   = 4.0
	longMin       = 35.0
	longRange     = 600.0
	nonGameMin    = 1.0
	nonGameRange  = 120.0
	startBackoffS = 3600.0
)

// Constants for session profile cases.
const (
	caseShortGame    = 0
	caseShortGame2   = 1
	caseBorderGame   = 2
	caseLongGame     = 3
	caseLongGame2    = 4
	caseLogin        = 5
	casePageView     = 6
	caseExactlyAtMin = 7
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Truncate(time.Second)
}

// generateSessions creates n sessions spread over the given games.
func generateSessions(ctx context.Context, n int, games []Game, now time.Time, stats *Stats) []Session {
	logger.Get().Info(ctx, "generating sessions", logger.Int("count", n), logger.Int("games", len(games)))

	sessions := make([]Session, n)
	for i := range sessions {
		sessions[i] = generateSingleSession(games, now)
	}
	stats.SessionsGenerated = len(sessions)
	return sessions
}

// generateSingleSession picks a profile and builds one session. Timestamps
// are second-aligned so the RFC3339 wire form does not shift the duration.
func generateSingleSession(games []Game, now time.Time) Session {
	s := Session{SessionID: "lg-" + uuid.NewString(), ActivityType: "Game Play"}

	randNum, _ := rand.Int(rand.Reader, big.NewInt(profileDivisor))
	switch randNum.Int64() {
	case caseShortGame, caseShortGame2:
		s.Duration = seconds(shortMin + getRandomFloat()*shortRange)
	case caseBorderGame:
		s.Duration = seconds(borderMin + getRandomFloat()*borderRange)
	case caseLongGame, caseLongGame2:
		s.Duration = seconds(longMin + getRandomFloat()*longRange)
	case caseLogin:
		s.ActivityType = "Login"
		s.Duration = seconds(nonGameMin + getRandomFloat()*nonGameRange)
	case casePageView:
		s.ActivityType = "Page View"
		s.Duration = seconds(nonGameMin + getRandomFloat()*nonGameRange)
	case caseExactlyAtMin:
		s.Duration = usage.MinGameSession
	}

	if s.ActivityType == "Game Play" && len(games) > 0 {
		s.GameID = games[randomIndex(len(games))].ID
	}
	s.StartTime = now.Add(-seconds(s.Duration.Seconds() + getRandomFloat()*startBackoffS)).UTC().Truncate(time.Second)
	s.ExpectPruned = expectPruned(s)
	return s
}

// expectPruned applies the server's retention rule to a finished session.
func expectPruned(s Session) bool {
	end := s.EndTime()
	return usage.ShouldPrune(model.UsageEvent{
		GameID:       s.GameID,
		ActivityType: model.ActivityType(s.ActivityType),
		StartTime:    s.StartTime,
		EndTime:      &end,
	})
}
