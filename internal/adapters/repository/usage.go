package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/internal/domain/model"
	"github.com/okian/arcade/internal/domain/types"
)

const usageColumns = `id, user_id, session_id, game_id, activity_type, start_time, end_time, session_count, created_at, updated_at`

// MutateFunc changes an event in place and returns whether it must be pruned.
type MutateFunc func(e *model.UsageEvent) (prune bool, err error)

// MutateResult is the outcome of Mutate.
type MutateResult struct {
	Event  *model.UsageEvent // nil when pruned now or earlier
	Pruned bool              // deleted by this call
	Gone   bool              // already pruned before this call
}

// UsageRepository stores usage events. Event identity is the natural key:
// inserts are idempotent and pruned ids are remembered so that a redelivered
// job cannot bring a pruned event back.
type UsageRepository struct {
	db *DB
}

// NewUsageRepository returns a repository on db.
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Insert stores e unless an event with the same id exists or was pruned.
// Reports whether a row was written.
func (r *UsageRepository) Insert(ctx context.Context, e model.UsageEvent) (bool, error) {
	const op = "repository.Usage.Insert"

	res, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO analytics (`+usageColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM analytics_tombstones WHERE id = ?)
		ON CONFLICT(id) DO NOTHING`,
		e.ID, nullString(e.UserID), nullString(e.SessionID), nullString(e.GameID),
		string(e.ActivityType), toMillis(e.StartTime), toNullMillis(e.EndTime), e.SessionCount,
		toMillis(e.CreatedAt), toMillis(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return false, classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(op, err)
	}
	return n == 1, nil
}

// Get returns the event with id.
func (r *UsageRepository) Get(ctx context.Context, id string) (*model.UsageEvent, error) {
	const op = "repository.Usage.Get"
	e, err := scanUsage(r.db.conn.QueryRowContext(ctx, `SELECT `+usageColumns+` FROM analytics WHERE id = ?`, id))
	if err != nil {
		return nil, classify(op, err)
	}
	return e, nil
}

// Tombstoned reports whether id was pruned.
func (r *UsageRepository) Tombstoned(ctx context.Context, id string) (bool, error) {
	return tombstoned(ctx, r.db.conn, id)
}

// Mutate loads the event, applies fn, and either saves it or deletes and
// tombstones it, all in one write transaction. Two concurrent mutations of
// the same event serialize; only one of them can prune it.
func (r *UsageRepository) Mutate(ctx context.Context, id string, now time.Time, fn MutateFunc) (MutateResult, error) {
	const op = "repository.Usage.Mutate"

	var out MutateResult
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		e, err := scanUsage(tx.QueryRowContext(ctx, `SELECT `+usageColumns+` FROM analytics WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			gone, tErr := tombstoned(ctx, tx, id)
			if tErr != nil {
				return tErr
			}
			if gone {
				out.Gone = true
				return nil
			}
			return apperr.NewKind(op, apperr.KindNotFound)
		}
		if err != nil {
			return err
		}

		prune, err := fn(e)
		if err != nil {
			return err
		}
		if prune {
			if err := deleteAndTombstone(ctx, tx, id, now); err != nil {
				return err
			}
			out.Pruned = true
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE analytics
			SET game_id = ?, activity_type = ?, end_time = ?, session_count = ?, updated_at = ?
			WHERE id = ?`,
			nullString(e.GameID), string(e.ActivityType), toNullMillis(e.EndTime), e.SessionCount, toMillis(e.UpdatedAt), id,
		)
		if err != nil {
			return err
		}
		out.Event = e
		return nil
	})
	if err != nil {
		return MutateResult{}, classify(op, err)
	}
	return out, nil
}

// Delete removes an event. The id is tombstoned so a pending redelivery does
// not recreate it.
func (r *UsageRepository) Delete(ctx context.Context, id string, now time.Time) error {
	const op = "repository.Usage.Delete"
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM analytics WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NewKind(op, apperr.KindNotFound)
		}
		_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO analytics_tombstones (id, pruned_at) VALUES (?, ?)`, id, toMillis(now))
		return err
	})
	return classify(op, err)
}

// List returns a page of events matching f, newest first.
func (r *UsageRepository) List(ctx context.Context, f model.UsageFilter) (types.Page[model.UsageEvent], error) {
	const op = "repository.Usage.List"

	where, args := usageWhere(f)
	page := types.Page[model.UsageEvent]{Items: []model.UsageEvent{}, Page: max(f.Page, 1), Limit: f.Limit}

	if err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytics`+where, args...).Scan(&page.Total); err != nil {
		return page, classify(op, err)
	}

	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+usageColumns+` FROM analytics`+where+` ORDER BY start_time DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, offset(f.Page, f.Limit))...,
	)
	if err != nil {
		return page, classify(op, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		e, err := scanUsage(rows)
		if err != nil {
			return page, classify(op, err)
		}
		page.Items = append(page.Items, *e)
	}
	return page, classify(op, rows.Err())
}

// Stats aggregates events matching f. Pagination fields are ignored.
func (r *UsageRepository) Stats(ctx context.Context, f model.UsageFilter) (types.UsageStats, error) {
	const op = "repository.Usage.Stats"

	where, args := usageWhere(f)
	var stats types.UsageStats

	total, err := r.groups(ctx, `''`, where, args)
	if err != nil {
		return stats, classify(op, err)
	}
	if len(total) == 1 {
		stats.UsageGroup = total[0]
	}
	stats.Key = "all"

	if stats.ByActivity, err = r.groups(ctx, `activity_type`, where, args); err != nil {
		return stats, classify(op, err)
	}

	gameWhere := " WHERE game_id IS NOT NULL"
	if where != "" {
		gameWhere = where + " AND game_id IS NOT NULL"
	}
	if stats.ByGame, err = r.groups(ctx, `game_id`, gameWhere, args); err != nil {
		return stats, classify(op, err)
	}
	return stats, nil
}

func (r *UsageRepository) groups(ctx context.Context, key, where string, args []any) ([]types.UsageGroup, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT `+key+` AS k,
		       COUNT(*),
		       COUNT(end_time),
		       COALESCE(SUM(end_time - start_time), 0),
		       COALESCE(SUM(session_count), 0)
		FROM analytics`+where+`
		GROUP BY k
		ORDER BY COUNT(*) DESC, k`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []types.UsageGroup{}
	for rows.Next() {
		var g types.UsageGroup
		var totalMillis int64
		if err := rows.Scan(&g.Key, &g.Count, &g.Finished, &totalMillis, &g.TotalSessions); err != nil {
			return nil, err
		}
		if g.Count == 0 {
			continue
		}
		g.TotalSeconds = float64(totalMillis) / 1000
		if g.Finished > 0 {
			g.AvgSeconds = g.TotalSeconds / float64(g.Finished)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func usageWhere(f model.UsageFilter) (string, []any) {
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.GameID != "" {
		conds = append(conds, "game_id = ?")
		args = append(args, f.GameID)
	}
	if f.ActivityType != "" {
		conds = append(conds, "activity_type = ?")
		args = append(args, string(f.ActivityType))
	}
	if f.From != nil {
		conds = append(conds, "start_time >= ?")
		args = append(args, toMillis(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "start_time < ?")
		args = append(args, toMillis(*f.To))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func tombstoned(ctx context.Context, q querier, id string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytics_tombstones WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

func deleteAndTombstone(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM analytics WHERE id = ?`, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO analytics_tombstones (id, pruned_at) VALUES (?, ?)`, id, toMillis(now))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUsage(s scanner) (*model.UsageEvent, error) {
	var (
		e                         model.UsageEvent
		userID, sessionID, gameID sql.NullString
		activity                  string
		start, created, updated   int64
		end                       sql.NullInt64
	)
	if err := s.Scan(&e.ID, &userID, &sessionID, &gameID, &activity, &start, &end, &e.SessionCount, &created, &updated); err != nil {
		return nil, err
	}
	e.UserID = userID.String
	e.SessionID = sessionID.String
	e.GameID = gameID.String
	e.ActivityType = model.ActivityType(activity)
	e.StartTime = fromMillis(start)
	e.EndTime = fromNullMillis(end)
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return &e, nil
}
