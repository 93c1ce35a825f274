package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/internal/domain/model"
	"github.com/okian/arcade/internal/domain/usage"
)

// headerUserID carries the authenticated identity set by the gateway in
// front of the service. It wins over a userId in the body.
const headerUserID = "X-User-ID"

// submitRequest mirrors the OpenAPI schema for POST /analytics.
type submitRequest struct {
	UserID       string     `json:"userId" validate:"required_without=SessionID"`
	SessionID    string     `json:"sessionId" validate:"required_without=UserID"`
	GameID       string     `json:"gameId"`
	ActivityType string     `json:"activityType" validate:"required,activity"`
	StartTime    *time.Time `json:"startTime" validate:"required"`
	EndTime      *time.Time `json:"endTime"`
	SessionCount int        `json:"sessionCount" validate:"min=0"`
}

type finalizeRequest struct {
	EndTime      *time.Time `json:"endTime" validate:"required"`
	SessionCount *int       `json:"sessionCount" validate:"omitempty,min=0"`
}

type updateUsageRequest struct {
	GameID       *string    `json:"gameId"`
	ActivityType *string    `json:"activityType" validate:"omitempty,activity"`
	EndTime      *time.Time `json:"endTime"`
	SessionCount *int       `json:"sessionCount" validate:"omitempty,min=0"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// AnalyticsHandler serves the usage event endpoints.
type AnalyticsHandler struct {
	svc UsageService
	rw  *responder
	in  *decoder
}

// HandleSubmit handles POST /analytics. The event is queued and the id it
// will be stored under is returned with 202.
func (h *AnalyticsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := h.in.read(r, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	if id := strings.TrimSpace(r.Header.Get(headerUserID)); id != "" {
		req.UserID = id
	}
	if err := h.in.check(&req); err != nil {
		h.rw.fail(w, r, err)
		return
	}

	sub := usage.Submission{
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		GameID:       req.GameID,
		ActivityType: model.ActivityType(req.ActivityType),
		StartTime:    req.StartTime.UTC(),
		SessionCount: req.SessionCount,
	}
	if req.EndTime != nil {
		end := req.EndTime.UTC()
		sub.EndTime = &end
	}

	id, err := h.svc.Submit(r.Context(), sub)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusAccepted, "usage event accepted", submitResponse{ID: id})
}

// HandleFinalize handles POST /analytics/{id}/end. Data is null when the
// session was too short to keep.
func (h *AnalyticsHandler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := h.in.body(r, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}

	e, err := h.svc.Finalize(r.Context(), chi.URLParam(r, "id"), req.EndTime.UTC(), req.SessionCount)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	if e == nil {
		h.rw.ok(w, http.StatusOK, "session discarded", nil)
		return
	}
	h.rw.ok(w, http.StatusOK, "session finalized", e)
}

// HandleUpdate handles PUT /analytics/{id}.
func (h *AnalyticsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateUsageRequest
	if err := h.in.body(r, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}

	patch := model.UsagePatch{GameID: req.GameID, SessionCount: req.SessionCount}
	if req.ActivityType != nil {
		a := model.ActivityType(*req.ActivityType)
		patch.ActivityType = &a
	}
	if req.EndTime != nil {
		end := req.EndTime.UTC()
		patch.EndTime = &end
	}

	e, err := h.svc.UpdateUsage(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	if e == nil {
		h.rw.ok(w, http.StatusOK, "session discarded", nil)
		return
	}
	h.rw.ok(w, http.StatusOK, "usage event updated", e)
}

// HandleDelete handles DELETE /analytics/{id}.
func (h *AnalyticsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteUsage(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "usage event deleted", nil)
}

// HandleGet handles GET /analytics/{id}.
func (h *AnalyticsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetUsage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", e)
}

// HandleList handles GET /analytics.
func (h *AnalyticsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	f, err := usageFilter(r, true)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	page, err := h.svc.ListUsage(r.Context(), f)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", page)
}

// HandleStats handles GET /analytics/stats.
func (h *AnalyticsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	f, err := usageFilter(r, false)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	stats, err := h.svc.UsageStats(r.Context(), f)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", stats)
}

func usageFilter(r *http.Request, paged bool) (model.UsageFilter, error) {
	q := r.URL.Query()
	f := model.UsageFilter{
		UserID:       q.Get("userId"),
		SessionID:    q.Get("sessionId"),
		GameID:       q.Get("gameId"),
		ActivityType: model.ActivityType(q.Get("activityType")),
	}
	if f.ActivityType != "" && !f.ActivityType.Valid() {
		return f, apperr.Invalid("api.usageFilter", apperr.FieldError{Field: "activityType", Message: "unknown activity type"})
	}

	var err error
	if f.From, err = queryTime(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		return f, err
	}
	if !paged {
		return f, nil
	}
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		return f, err
	}
	f.Limit, err = queryInt(r, "limit", 0)
	return f, err
}
