package service

import (
	"context"
	"strconv"
	"time"

	"github.com/okian/arcade/internal/adapters/cache"
	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/internal/domain/engagement"
	"github.com/okian/arcade/internal/domain/model"
	"github.com/okian/arcade/internal/domain/types"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/metrics"
)

const (
	defaultMostClicked  = 10
	defaultRecentWindow = 24 * time.Hour
)

// SetPosition moves a game, swapping with the game that holds the target
// slot.
func (s *Service) SetPosition(ctx context.Context, gameID string, position int) (model.Reorder, error) {
	now := s.now()
	r, err := s.rank.SetPosition(ctx, gameID, position, now)
	if err != nil {
		return r, err
	}

	outcome := "noop"
	switch {
	case r.Displaced != nil:
		outcome = "swap"
	case r.Moved.UpdatedAt.Equal(now):
		outcome = "move"
	}
	metrics.RecordReorder(outcome)
	if outcome != "noop" {
		s.invalidate(ctx, cache.NamespaceGames)
	}

	fields := []logger.Field{
		logger.String("game_id", gameID),
		logger.Int("position", position),
		logger.String("outcome", outcome),
	}
	if r.Displaced != nil {
		fields = append(fields, logger.String("displaced_id", r.Displaced.ID), logger.Int("displaced_to", *r.Displaced.Position))
	}
	s.log.Info(ctx, "game reordered", fields...)
	return r, nil
}

// RecordClick counts a click against the game's current position.
func (s *Service) RecordClick(ctx context.Context, gameID string) (model.ClickResult, error) {
	res, err := s.rank.RecordClick(ctx, gameID, s.now())
	if err != nil {
		return res, err
	}
	metrics.RecordClick()
	return res, nil
}

// GetAtPosition returns the active game at position.
func (s *Service) GetAtPosition(ctx context.Context, position int) (*model.Game, error) {
	const op = "service.GetAtPosition"
	if position < 1 {
		return nil, apperr.New(op, apperr.KindBadRequest, "position must be positive")
	}
	return s.rank.GetAtPosition(ctx, position)
}

// GameHistory summarises every position a game has been clicked at.
func (s *Service) GameHistory(ctx context.Context, gameID string) (types.GameHistory, error) {
	key := cache.Key(cache.NamespacePositions, map[string]string{"game": gameID})
	return cache.Remember(ctx, s.cache, cache.NamespacePositions, key, func(ctx context.Context) (types.GameHistory, error) {
		rows, err := s.rank.History(ctx, gameID)
		if err != nil {
			return types.GameHistory{}, err
		}
		return engagement.ForGame(gameID, rows), nil
	})
}

// PositionPerformance rolls clicks up by slot.
func (s *Service) PositionPerformance(ctx context.Context) ([]types.PositionPerformance, error) {
	key := cache.Key(cache.NamespacePositions, map[string]string{"view": "positions"})
	return cache.Remember(ctx, s.cache, cache.NamespacePositions, key, func(ctx context.Context) ([]types.PositionPerformance, error) {
		rows, err := s.rank.AllHistory(ctx)
		if err != nil {
			return nil, err
		}
		return engagement.ByPosition(rows), nil
	})
}

// MostClickedPositions returns the top slots by clicks.
func (s *Service) MostClickedPositions(ctx context.Context, limit int) ([]types.PositionPerformance, error) {
	if limit < 1 {
		limit = defaultMostClicked
	}
	limit = min(limit, s.maxPageSize)
	key := cache.Key(cache.NamespacePositions, map[string]string{"view": "most-clicked", "limit": strconv.Itoa(limit)})
	return cache.Remember(ctx, s.cache, cache.NamespacePositions, key, func(ctx context.Context) ([]types.PositionPerformance, error) {
		rows, err := s.rank.AllHistory(ctx)
		if err != nil {
			return nil, err
		}
		return engagement.MostClicked(rows, limit), nil
	})
}

// RecentActivity returns rows clicked within window.
func (s *Service) RecentActivity(ctx context.Context, window time.Duration) (types.RecentActivity, error) {
	if window <= 0 {
		window = defaultRecentWindow
	}
	// Rounded so that requests within the same minute share an entry.
	since := s.now().Add(-window).Truncate(time.Minute)
	key := cache.Key(cache.NamespacePositions, map[string]string{"view": "recent", "since": strconv.FormatInt(since.UnixMilli(), 10)})
	return cache.Remember(ctx, s.cache, cache.NamespacePositions, key, func(ctx context.Context) (types.RecentActivity, error) {
		rows, err := s.rank.HistorySince(ctx, since)
		if err != nil {
			return types.RecentActivity{}, err
		}
		return engagement.Recent(rows, since), nil
	})
}
