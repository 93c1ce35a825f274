package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/arcade/pkg/logger"
)

type gameHistory struct {
	GameID      string `json:"gameId"`
	TotalClicks int64  `json:"totalClicks"`
}

// verifyResults checks that short game sessions were pruned while the rest
// were kept, and that click totals reached the history.
func verifyResults(ctx context.Context, client *HTTPClient, sessions []Session, clicks map[string]int64, stats *Stats) error {
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "verifying results")

	for _, s := range sessions {
		if s.ID == "" {
			continue
		}
		code, _, err := client.Do(ctx, http.MethodGet, "/analytics/"+s.ID, nil)
		if err != nil {
			return fmt.Errorf("verify %s: %w", s.ID, err)
		}
		switch {
		case s.ExpectPruned && code == http.StatusNotFound:
			stats.VerifiedPruned++
		case !s.ExpectPruned && code == http.StatusOK:
			stats.VerifiedKept++
		default:
			stats.Mismatches++
			log.Warn(ctx, "retention mismatch",
				logger.String("id", s.ID),
				logger.String("activity", s.ActivityType),
				logger.Duration("duration", s.Duration),
				logger.Bool("expectPruned", s.ExpectPruned),
				logger.Int("status", code))
		}
	}

	// History totals include clicks from earlier runs, so they are a floor.
	for id, want := range clicks {
		var h gameHistory
		if err := client.expect(ctx, http.StatusOK, http.MethodGet, "/game-position-history/"+id, nil, &h); err != nil {
			return err
		}
		if h.TotalClicks < want {
			stats.Mismatches++
			log.Warn(ctx, "click total too low", logger.String("game", id), logger.Int64("want", want), logger.Int64("got", h.TotalClicks))
		}
	}

	if err := verifyPositions(ctx, client, stats); err != nil {
		return err
	}

	if stats.Mismatches > 0 {
		return fmt.Errorf("%d mismatches", stats.Mismatches)
	}
	log.Info(ctx, "result verification completed",
		logger.Int("kept", stats.VerifiedKept),
		logger.Int("pruned", stats.VerifiedPruned))
	return nil
}

// verifyPositions checks that no two active games share a position after
// the reorders.
func verifyPositions(ctx context.Context, client *HTTPClient, stats *Stats) error {
	var page struct {
		Items []Game `json:"items"`
	}
	path := "/games?active=true&limit=" + strconv.Itoa(maxCatalogPage)
	if err := client.expect(ctx, http.StatusOK, http.MethodGet, path, nil, &page); err != nil {
		return err
	}

	holders := make(map[int]string, len(page.Items))
	for _, g := range page.Items {
		if g.Position == nil {
			continue
		}
		if other, taken := holders[*g.Position]; taken {
			stats.Mismatches++
			logger.Get().Named("loadgen").Warn(ctx, "position held twice",
				logger.Int("position", *g.Position),
				logger.String("game", g.ID),
				logger.String("other", other))
			continue
		}
		holders[*g.Position] = g.ID
	}
	return nil
}
