package repository

import "context"

// ActivePositions returns every active game's position, keyed by game id.
func (r *CatalogRepository) ActivePositions(ctx context.Context) (map[string]int, error) {
	const op = "repository.Catalog.ActivePositions"
	rows, err := r.db.conn.QueryContext(ctx, `SELECT id, position FROM games WHERE is_active = 1 AND position IS NOT NULL`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var pos int
		if err := rows.Scan(&id, &pos); err != nil {
			return nil, classify(op, err)
		}
		out[id] = pos
	}
	return out, classify(op, rows.Err())
}
