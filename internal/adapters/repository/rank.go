package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/internal/domain/model"
)

// RankRepository maintains game positions and per-slot click history.
type RankRepository struct {
	db *DB
}

// NewRankRepository returns a repository on db.
func NewRankRepository(db *DB) *RankRepository {
	return &RankRepository{db: db}
}

// SetPosition moves gameID to position. If another active game holds the
// slot, the two games exchange positions. A game that had no position sends
// the occupant to the first free slot after the current maximum.
//
// The whole exchange runs in one IMMEDIATE transaction, so concurrent
// reorders serialize on the write lock and the unique index on active
// positions holds at every commit.
func (r *RankRepository) SetPosition(ctx context.Context, gameID string, position int, now time.Time) (model.Reorder, error) {
	const op = "repository.Rank.SetPosition"

	var out model.Reorder
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		mover, err := scanGame(tx.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ? AND is_active = 1`, gameID))
		if err != nil {
			return err
		}

		var active, maxPos int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(MAX(position), 0) FROM games WHERE is_active = 1`,
		).Scan(&active, &maxPos); err != nil {
			return err
		}
		if position < 1 || position > max(active, maxPos) {
			return apperr.Newf(op, apperr.KindBadRequest, "position must be between 1 and %d", max(active, maxPos))
		}

		if mover.Position != nil && *mover.Position == position {
			out.Moved = *mover
			return nil
		}

		occupant, err := scanGame(tx.QueryRowContext(ctx,
			`SELECT `+gameColumns+` FROM games WHERE position = ? AND is_active = 1 AND id <> ?`, position, gameID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			occupant = nil
		case err != nil:
			return err
		}

		ms := toMillis(now)
		if occupant != nil {
			vacated := maxPos + 1
			if mover.Position != nil {
				vacated = *mover.Position
			}
			// Release the mover's slot first; the partial unique index is
			// checked per statement.
			if _, err := tx.ExecContext(ctx, `UPDATE games SET position = NULL WHERE id = ?`, gameID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE games SET position = ?, updated_at = ? WHERE id = ?`, vacated, ms, occupant.ID); err != nil {
				return err
			}
			occupant.Position = &vacated
			occupant.UpdatedAt = now
			out.Displaced = occupant
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE games SET position = ?, updated_at = ? WHERE id = ?`, position, ms, gameID); err != nil {
			return err
		}
		p := position
		mover.Position = &p
		mover.UpdatedAt = now
		out.Moved = *mover
		return nil
	})
	if err != nil {
		return model.Reorder{}, classify(op, err)
	}
	return out, nil
}

// RecordClick resolves the game's current position and increments the
// history row for that (game, position) pair.
func (r *RankRepository) RecordClick(ctx context.Context, gameID string, now time.Time) (model.ClickResult, error) {
	const op = "repository.Rank.RecordClick"

	res := model.ClickResult{GameID: gameID}
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var pos sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT position FROM games WHERE id = ? AND is_active = 1`, gameID).Scan(&pos); err != nil {
			return err
		}
		if !pos.Valid {
			return apperr.New(op, apperr.KindNotFound, "game has no assigned position")
		}
		res.Position = int(pos.Int64)

		ms := toMillis(now)
		return tx.QueryRowContext(ctx, `
			INSERT INTO game_position_history (game_id, position, click_count, first_clicked_at, last_clicked_at)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT(game_id, position) DO UPDATE
			SET click_count = click_count + 1, last_clicked_at = excluded.last_clicked_at
			RETURNING click_count`,
			gameID, res.Position, ms, ms,
		).Scan(&res.ClickCount)
	})
	if err != nil {
		return model.ClickResult{}, classify(op, err)
	}
	return res, nil
}

// GetAtPosition returns the active game at position.
func (r *RankRepository) GetAtPosition(ctx context.Context, position int) (*model.Game, error) {
	const op = "repository.Rank.GetAtPosition"
	g, err := scanGame(r.db.conn.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE position = ? AND is_active = 1`, position))
	if err != nil {
		return nil, classify(op, err)
	}
	return g, nil
}

// History returns every row for gameID ordered by position.
func (r *RankRepository) History(ctx context.Context, gameID string) ([]model.PositionHistory, error) {
	const op = "repository.Rank.History"
	rows, err := r.queryHistory(ctx, ` WHERE game_id = ? ORDER BY position`, gameID)
	return rows, classify(op, err)
}

// AllHistory returns every history row.
func (r *RankRepository) AllHistory(ctx context.Context) ([]model.PositionHistory, error) {
	const op = "repository.Rank.AllHistory"
	rows, err := r.queryHistory(ctx, ` ORDER BY position, game_id`)
	return rows, classify(op, err)
}

// HistorySince returns rows clicked at or after since.
func (r *RankRepository) HistorySince(ctx context.Context, since time.Time) ([]model.PositionHistory, error) {
	const op = "repository.Rank.HistorySince"
	rows, err := r.queryHistory(ctx, ` WHERE last_clicked_at >= ? ORDER BY last_clicked_at DESC`, toMillis(since))
	return rows, classify(op, err)
}

func (r *RankRepository) queryHistory(ctx context.Context, tail string, args ...any) ([]model.PositionHistory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT game_id, position, click_count, first_clicked_at, last_clicked_at FROM game_position_history`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []model.PositionHistory{}
	for rows.Next() {
		var h model.PositionHistory
		var first, last int64
		if err := rows.Scan(&h.GameID, &h.Position, &h.ClickCount, &first, &last); err != nil {
			return nil, err
		}
		h.FirstClickedAt = fromMillis(first)
		h.LastClickedAt = fromMillis(last)
		out = append(out, h)
	}
	return out, rows.Err()
}
