package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/okian/arcade/internal/domain/model"
)

// CDNRepository stores the published snapshot version.
type CDNRepository struct {
	db *DB
}

// NewCDNRepository returns a repository on db.
func NewCDNRepository(db *DB) *CDNRepository {
	return &CDNRepository{db: db}
}

// Version returns the current snapshot version.
func (r *CDNRepository) Version(ctx context.Context) (model.CDNVersion, error) {
	const op = "repository.CDN.Version"
	v, err := scanCDN(r.db.conn.QueryRowContext(ctx, `SELECT version, enabled, updated_at FROM cdn_state WHERE id = 1`))
	return v, classify(op, err)
}

// Publish bumps the version and optionally toggles snapshot serving.
func (r *CDNRepository) Publish(ctx context.Context, enabled *bool, now time.Time) (model.CDNVersion, error) {
	const op = "repository.CDN.Publish"

	var v model.CDNVersion
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		v, err = scanCDN(tx.QueryRowContext(ctx, `
			UPDATE cdn_state
			SET version = version + 1, enabled = COALESCE(?, enabled), updated_at = ?
			WHERE id = 1
			RETURNING version, enabled, updated_at`,
			nullBool(enabled), toMillis(now)))
		return err
	})
	return v, classify(op, err)
}

func scanCDN(s scanner) (model.CDNVersion, error) {
	var v model.CDNVersion
	var updated int64
	if err := s.Scan(&v.Version, &v.Enabled, &updated); err != nil {
		return model.CDNVersion{}, err
	}
	v.UpdatedAt = fromMillis(updated)
	return v, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
