package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/internal/domain/model"
	"github.com/okian/arcade/internal/domain/types"
)

const (
	gameColumns     = `id, title, category_id, position, is_active, created_at, updated_at`
	categoryColumns = `id, name, description, created_at, updated_at`
)

// CatalogRepository stores categories and games.
type CatalogRepository struct {
	db *DB
}

// NewCatalogRepository returns a repository on db.
func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// CreateCategory inserts c. Names are unique.
func (r *CatalogRepository) CreateCategory(ctx context.Context, c model.Category) error {
	const op = "repository.Catalog.CreateCategory"
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, toMillis(c.CreatedAt), toMillis(c.UpdatedAt))
	return classify(op, err)
}

// GetCategory returns the category with id.
func (r *CatalogRepository) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	const op = "repository.Catalog.GetCategory"
	c, err := scanCategory(r.db.conn.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if err != nil {
		return nil, classify(op, err)
	}
	return c, nil
}

// UpdateCategory overwrites name and description.
func (r *CatalogRepository) UpdateCategory(ctx context.Context, c model.Category) error {
	const op = "repository.Catalog.UpdateCategory"
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE categories SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Description, toMillis(c.UpdatedAt), c.ID)
	return affected(op, res, err)
}

// DeleteCategory removes a category; its games keep existing uncategorised.
func (r *CatalogRepository) DeleteCategory(ctx context.Context, id string) error {
	const op = "repository.Catalog.DeleteCategory"
	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	return affected(op, res, err)
}

// ListCategories returns a page of categories ordered by name.
func (r *CatalogRepository) ListCategories(ctx context.Context, f model.CategoryFilter) (types.Page[model.Category], error) {
	const op = "repository.Catalog.ListCategories"

	where, args := "", []any{}
	if f.Search != "" {
		where = ` WHERE name LIKE ? ESCAPE '\'`
		args = append(args, likePattern(f.Search))
	}

	page := types.Page[model.Category]{Items: []model.Category{}, Page: max(f.Page, 1), Limit: f.Limit}
	if err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`+where, args...).Scan(&page.Total); err != nil {
		return page, classify(op, err)
	}

	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories`+where+` ORDER BY name LIMIT ? OFFSET ?`,
		append(args, f.Limit, offset(f.Page, f.Limit))...)
	if err != nil {
		return page, classify(op, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return page, classify(op, err)
		}
		page.Items = append(page.Items, *c)
	}
	return page, classify(op, rows.Err())
}

// CreateGame inserts g. A position already held by an active game is rejected.
func (r *CatalogRepository) CreateGame(ctx context.Context, g model.Game) error {
	const op = "repository.Catalog.CreateGame"
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO games (`+gameColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Title, nullString(g.CategoryID), nullInt(g.Position), g.IsActive,
		toMillis(g.CreatedAt), toMillis(g.UpdatedAt))
	return classify(op, err)
}

// GetGame returns the game with id, active or not.
func (r *CatalogRepository) GetGame(ctx context.Context, id string) (*model.Game, error) {
	const op = "repository.Catalog.GetGame"
	g, err := scanGame(r.db.conn.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id))
	if err != nil {
		return nil, classify(op, err)
	}
	return g, nil
}

// UpdateGame overwrites title, category and active flag. Positions only
// change through RankRepository.SetPosition; a deactivated game gives up
// its slot.
func (r *CatalogRepository) UpdateGame(ctx context.Context, g model.Game) error {
	const op = "repository.Catalog.UpdateGame"
	res, err := r.db.conn.ExecContext(ctx, `
		UPDATE games
		SET title = ?, category_id = ?, is_active = ?,
		    position = CASE WHEN ? THEN position ELSE NULL END,
		    updated_at = ?
		WHERE id = ?`,
		g.Title, nullString(g.CategoryID), g.IsActive, g.IsActive, toMillis(g.UpdatedAt), g.ID)
	return affected(op, res, err)
}

// DeactivateGame hides a game and frees its position. History rows are kept.
func (r *CatalogRepository) DeactivateGame(ctx context.Context, id string, now time.Time) error {
	const op = "repository.Catalog.DeactivateGame"
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE games SET is_active = 0, position = NULL, updated_at = ? WHERE id = ?`, toMillis(now), id)
	return affected(op, res, err)
}

// ListGames returns a page of games ordered by position, unplaced games last.
func (r *CatalogRepository) ListGames(ctx context.Context, f model.GameFilter) (types.Page[model.Game], error) {
	const op = "repository.Catalog.ListGames"

	var conds []string
	var args []any
	if f.ActiveOnly {
		conds = append(conds, "is_active = 1")
	}
	if f.CategoryID != "" {
		conds = append(conds, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Search != "" {
		conds = append(conds, `title LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Search))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	page := types.Page[model.Game]{Items: []model.Game{}, Page: max(f.Page, 1), Limit: f.Limit}
	if err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`+where, args...).Scan(&page.Total); err != nil {
		return page, classify(op, err)
	}

	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games`+where+` ORDER BY position IS NULL, position, title LIMIT ? OFFSET ?`,
		append(args, f.Limit, offset(f.Page, f.Limit))...)
	if err != nil {
		return page, classify(op, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return page, classify(op, err)
		}
		page.Items = append(page.Items, *g)
	}
	return page, classify(op, rows.Err())
}

func scanGame(s scanner) (*model.Game, error) {
	var (
		g                model.Game
		category         sql.NullString
		position         sql.NullInt64
		created, updated int64
	)
	if err := s.Scan(&g.ID, &g.Title, &category, &position, &g.IsActive, &created, &updated); err != nil {
		return nil, err
	}
	g.CategoryID = category.String
	if position.Valid {
		p := int(position.Int64)
		g.Position = &p
	}
	g.CreatedAt = fromMillis(created)
	g.UpdatedAt = fromMillis(updated)
	return &g, nil
}

func scanCategory(s scanner) (*model.Category, error) {
	var c model.Category
	var created, updated int64
	if err := s.Scan(&c.ID, &c.Name, &c.Description, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// affected turns a zero-row write into NotFound.
func affected(op string, res sql.Result, err error) error {
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return apperr.NewKind(op, apperr.KindNotFound)
	}
	return nil
}
