package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/okian/arcade/pkg/logger"
)

type clickResult struct {
	GameID     string `json:"gameId"`
	Position   int    `json:"position"`
	ClickCount int64  `json:"clickCount"`
}

type reorderResult struct {
	Moved     Game  `json:"moved"`
	Displaced *Game `json:"displaced,omitempty"`
}

// recordClicks clicks every placed game once per kept session that played
// it and returns the expected click totals per game.
func recordClicks(ctx context.Context, config *Config, client *HTTPClient, sessions []Session, games []Game, stats *Stats) map[string]int64 {
	placed := make(map[string]bool, len(games))
	for _, g := range games {
		if g.Position != nil {
			placed[g.ID] = true
		}
	}

	var targets []string
	for _, s := range sessions {
		if s.ID != "" && !s.ExpectPruned && placed[s.GameID] {
			targets = append(targets, s.GameID)
		}
	}

	log := logger.Get().Named("loadgen")
	log.Info(ctx, "recording clicks", logger.Int("clicks", len(targets)))

	expected := make(map[string]int64)
	var mu sync.Mutex
	var done int64

	ch := make(chan string, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ch {
				var res clickResult
				path := "/game-position-history/" + id + "/click"
				if err := client.expect(ctx, http.StatusOK, http.MethodPost, path, nil, &res); err != nil {
					if config.Verbose {
						log.Warn(ctx, "click failed", logger.String("game", id), logger.Error(err))
					}
					continue
				}
				mu.Lock()
				expected[id]++
				mu.Unlock()
				atomic.AddInt64(&done, 1)
			}
		}()
	}
	for _, id := range targets {
		ch <- id
	}
	close(ch)
	wg.Wait()

	stats.Clicks = int(done)
	return expected
}

// reorderGames moves the last placed game to slot 1 a few times and checks
// that the slot reports the mover afterwards.
func reorderGames(ctx context.Context, client *HTTPClient, games []Game, stats *Stats) error {
	var placed []Game
	for _, g := range games {
		if g.Position != nil {
			placed = append(placed, g)
		}
	}
	if len(placed) < 2 {
		return nil
	}

	for round := 0; round < reorderRounds; round++ {
		mover := placed[len(placed)-1-round%len(placed)]

		var res reorderResult
		path := "/games/" + mover.ID + "/position"
		if err := client.expect(ctx, http.StatusOK, http.MethodPut, path, map[string]int{"position": 1}, &res); err != nil {
			return err
		}
		if res.Moved.Position == nil || *res.Moved.Position != 1 {
			return fmt.Errorf("reorder %s: moved game not at position 1", mover.ID)
		}

		var at Game
		if err := client.expect(ctx, http.StatusOK, http.MethodGet, "/games/position/1", nil, &at); err != nil {
			return err
		}
		if at.ID != mover.ID {
			return fmt.Errorf("reorder %s: position 1 holds %s", mover.ID, at.ID)
		}
		stats.Reorders++
	}
	return nil
}
