package repository

import (
	"context"

	"github.com/okian/arcade/internal/domain/model"
)

const configColumns = `key, value, description, created_at, updated_at`

// ConfigRepository stores system configuration entries.
type ConfigRepository struct {
	db *DB
}

// NewConfigRepository returns a repository on db.
func NewConfigRepository(db *DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Create inserts c; an existing key is a bad request.
func (r *ConfigRepository) Create(ctx context.Context, c model.SystemConfig) error {
	const op = "repository.Config.Create"
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO system_configs (`+configColumns+`) VALUES (?, ?, ?, ?, ?)`,
		c.Key, c.Value, c.Description, toMillis(c.CreatedAt), toMillis(c.UpdatedAt))
	return classify(op, err)
}

// Get returns the entry for key.
func (r *ConfigRepository) Get(ctx context.Context, key string) (*model.SystemConfig, error) {
	const op = "repository.Config.Get"
	c, err := scanConfig(r.db.conn.QueryRowContext(ctx, `SELECT `+configColumns+` FROM system_configs WHERE key = ?`, key))
	if err != nil {
		return nil, classify(op, err)
	}
	return c, nil
}

// Update overwrites value and description.
func (r *ConfigRepository) Update(ctx context.Context, c model.SystemConfig) error {
	const op = "repository.Config.Update"
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE system_configs SET value = ?, description = ?, updated_at = ? WHERE key = ?`,
		c.Value, c.Description, toMillis(c.UpdatedAt), c.Key)
	return affected(op, res, err)
}

// Delete removes key.
func (r *ConfigRepository) Delete(ctx context.Context, key string) error {
	const op = "repository.Config.Delete"
	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM system_configs WHERE key = ?`, key)
	return affected(op, res, err)
}

// List returns every entry ordered by key.
func (r *ConfigRepository) List(ctx context.Context) ([]model.SystemConfig, error) {
	const op = "repository.Config.List"
	rows, err := r.db.conn.QueryContext(ctx, `SELECT `+configColumns+` FROM system_configs ORDER BY key`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.SystemConfig{}
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, *c)
	}
	return out, classify(op, rows.Err())
}

func scanConfig(s scanner) (*model.SystemConfig, error) {
	var c model.SystemConfig
	var created, updated int64
	if err := s.Scan(&c.Key, &c.Value, &c.Description, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}
