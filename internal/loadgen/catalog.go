package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/snapshot"
)

// apiOrigin reads catalog resources from the live API when the edge
// snapshot is unavailable.
type apiOrigin struct {
	client *HTTPClient
}

func (o apiOrigin) Fetch(ctx context.Context, d snapshot.Descriptor) (json.RawMessage, error) {
	switch d.ResourceType {
	case "games":
		var page struct {
			Items json.RawMessage `json:"items"`
		}
		path := "/games?active=true&limit=" + strconv.Itoa(maxCatalogPage)
		if err := o.client.expect(ctx, http.StatusOK, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		return page.Items, nil
	default:
		return nil, fmt.Errorf("unsupported resource %q", d.ResourceType)
	}
}

// readCatalog returns the active games, from the snapshot edge when possible.
func readCatalog(ctx context.Context, reader *snapshot.Reader, client *HTTPClient, stats *Stats) ([]Game, error) {
	if _, err := reader.RefreshVersion(ctx); err != nil {
		logger.Get().Warn(ctx, "could not refresh snapshot version", logger.Error(err))
	}

	res, err := reader.FetchOrOrigin(ctx, snapshot.Games(), apiOrigin{client: client})
	if err != nil {
		return nil, err
	}
	stats.CatalogSource = res.Source

	var games []Game
	if len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, &games); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
	}

	active := games[:0]
	for _, g := range games {
		if g.IsActive {
			active = append(active, g)
		}
	}
	logger.Get().Info(ctx, "catalog loaded",
		logger.String("source", res.Source),
		logger.Int("games", len(active)),
		logger.Duration("took", res.Duration))
	return active, nil
}

// seedGames creates n placed games after the highest occupied position.
func seedGames(ctx context.Context, client *HTTPClient, existing []Game, n int, stats *Stats) ([]Game, error) {
	next := 1
	for _, g := range existing {
		if g.Position != nil && *g.Position >= next {
			next = *g.Position + 1
		}
	}

	out := append([]Game(nil), existing...)
	for i := 0; i < n; i++ {
		pos := next + i
		req := map[string]any{"title": fmt.Sprintf("Loadgen Game %d", pos), "position": pos}
		var g Game
		if err := client.expect(ctx, http.StatusCreated, http.MethodPost, "/games", req, &g); err != nil {
			return out, fmt.Errorf("seed game %d: %w", pos, err)
		}
		out = append(out, g)
		stats.GamesSeeded++
	}
	if n > 0 {
		logger.Get().Info(ctx, "seeded games", logger.Int("count", n))
	}
	return out, nil
}
