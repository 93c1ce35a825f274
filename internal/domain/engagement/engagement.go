// Package engagement derives rollups from position history rows.
package engagement

import (
	"sort"
	"time"

	"github.com/okian/arcade/internal/domain/model"
	"github.com/okian/arcade/internal/domain/types"
)

// ByPosition groups rows by slot, across every game that held it.
// Result is ordered by position.
func ByPosition(rows []model.PositionHistory) []types.PositionPerformance {
	idx := make(map[int]*types.PositionPerformance)
	var total int64
	for _, r := range rows {
		p, ok := idx[r.Position]
		if !ok {
			p = &types.PositionPerformance{Position: r.Position}
			idx[r.Position] = p
		}
		p.TotalClicks += r.ClickCount
		p.GameCount++
		if r.LastClickedAt.After(p.LastClickedAt) {
			p.LastClickedAt = r.LastClickedAt
		}
		total += r.ClickCount
	}

	out := make([]types.PositionPerformance, 0, len(idx))
	for _, p := range idx {
		p.AvgClicksByGame = ratio(p.TotalClicks, int64(p.GameCount))
		p.ShareOfClicks = ratio(p.TotalClicks, total)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// MostClicked returns at most limit positions ordered by total clicks.
// Ties go to the lower position.
func MostClicked(rows []model.PositionHistory, limit int) []types.PositionPerformance {
	perf := ByPosition(rows)
	sort.SliceStable(perf, func(i, j int) bool {
		if perf[i].TotalClicks != perf[j].TotalClicks {
			return perf[i].TotalClicks > perf[j].TotalClicks
		}
		return perf[i].Position < perf[j].Position
	})
	if limit > 0 && len(perf) > limit {
		perf = perf[:limit]
	}
	return perf
}

// ForGame summarises one game's rows.
func ForGame(gameID string, rows []model.PositionHistory) types.GameHistory {
	h := types.GameHistory{GameID: gameID, Positions: make([]types.GamePositionStat, 0, len(rows))}
	for _, r := range rows {
		h.TotalClicks += r.ClickCount
	}
	for _, r := range rows {
		h.Positions = append(h.Positions, types.GamePositionStat{
			Position:      r.Position,
			ClickCount:    r.ClickCount,
			ShareOfClicks: ratio(r.ClickCount, h.TotalClicks),
			LastClickedAt: r.LastClickedAt,
		})
	}
	sort.Slice(h.Positions, func(i, j int) bool { return h.Positions[i].Position < h.Positions[j].Position })
	return h
}

// Recent keeps rows clicked at or after since, newest first.
func Recent(rows []model.PositionHistory, since time.Time) types.RecentActivity {
	ra := types.RecentActivity{Since: since, Rows: []types.RecentClick{}}
	for _, r := range rows {
		if r.LastClickedAt.Before(since) {
			continue
		}
		ra.TotalClicks += r.ClickCount
		ra.Rows = append(ra.Rows, types.RecentClick{
			GameID:        r.GameID,
			Position:      r.Position,
			ClickCount:    r.ClickCount,
			LastClickedAt: r.LastClickedAt,
		})
	}
	sort.SliceStable(ra.Rows, func(i, j int) bool { return ra.Rows[i].LastClickedAt.After(ra.Rows[j].LastClickedAt) })
	return ra
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
