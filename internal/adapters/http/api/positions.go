package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultMostClicked  = 10
	defaultRecentWindow = 24 * time.Hour
)

type positionRequest struct {
	Position int `json:"position" validate:"required,min=1"`
}

// PositionHandler serves game ordering and click history.
type PositionHandler struct {
	svc RankService
	rw  *responder
	in  *decoder
}

// HandleSetPosition handles PUT /games/{id}/position. When the slot is
// taken the occupant swaps into the mover's old slot.
func (h *PositionHandler) HandleSetPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := h.in.body(r, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	res, err := h.svc.SetPosition(r.Context(), chi.URLParam(r, "id"), req.Position)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "position updated", res)
}

// HandleGetAtPosition handles GET /games/position/{position}.
func (h *PositionHandler) HandleGetAtPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := pathInt("position", chi.URLParam(r, "position"))
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	g, err := h.svc.GetAtPosition(r.Context(), pos)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", g)
}

// HandleClick handles POST /game-position-history/{gameId}/click.
func (h *PositionHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RecordClick(r.Context(), chi.URLParam(r, "gameId"))
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "click recorded", res)
}

// HandleHistory handles GET /game-position-history/{gameId}.
func (h *PositionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.svc.GameHistory(r.Context(), chi.URLParam(r, "gameId"))
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", hist)
}

// HandlePerformance handles GET /game-position-history/analytics/positions.
func (h *PositionHandler) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.svc.PositionPerformance(r.Context())
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", perf)
}

// HandleMostClicked handles GET /game-position-history/analytics/most-clicked.
func (h *PositionHandler) HandleMostClicked(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultMostClicked)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	perf, err := h.svc.MostClickedPositions(r.Context(), limit)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", perf)
}

// HandleRecent handles GET /game-position-history/analytics/recent. The
// window is given in hours.
func (h *PositionHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", int(defaultRecentWindow/time.Hour))
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	window := defaultRecentWindow
	if hours > 0 {
		window = time.Duration(hours) * time.Hour
	}
	act, err := h.svc.RecentActivity(r.Context(), window)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", act)
}
