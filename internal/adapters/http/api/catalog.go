package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/arcade/internal/app"
	"github.com/okian/arcade/internal/domain/model"
)

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type categoryPatchRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type gameRequest struct {
	Title      string `json:"title" validate:"required,max=200"`
	CategoryID string `json:"categoryId"`
	Position   *int   `json:"position" validate:"omitempty,min=1"`
	IsActive   *bool  `json:"isActive"`
}

type gamePatchRequest struct {
	Title      *string `json:"title" validate:"omitempty,min=1,max=200"`
	CategoryID *string `json:"categoryId"`
	IsActive   *bool   `json:"isActive"`
}

// CatalogHandler serves games and categories.
type CatalogHandler struct {
	svc CatalogService
	rw  *responder
	in  *decoder
}

// HandleListCategories handles GET /categories.
func (h *CatalogHandler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	f := model.CategoryFilter{Search: r.URL.Query().Get("search")}
	var err error
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	if f.Limit, err = queryInt(r, "limit", 0); err != nil {
		h.rw.fail(w, r, err)
		return
	}

	page, err := h.svc.ListCategories(r.Context(), f)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", page)
}

// HandleGetCategory handles GET /categories/{id}.
func (h *CatalogHandler) HandleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", c)
}

// HandleCreateCategory handles POST /categories.
func (h *CatalogHandler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := h.in.body(r, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	c, err := h.svc.CreateCategory(r.Context(), model.Category{Name: req.Name, Description: req.Description})
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusCreated, "category created", c)
}

// HandleUpdateCategory handles PUT /categories/{id}.
func (h *CatalogHandler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryPatchRequest
	if err := h.in.body(r, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	c, err := h.svc.UpdateCategory(r.Context(), chi.URLParam(r, "id"), service.CategoryPatch{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "category updated", c)
}

// HandleDeleteCategory handles DELETE /categories/{id}.
func (h *CatalogHandler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "category deleted", nil)
}

// HandleListGames handles GET /games.
func (h *CatalogHandler) HandleListGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.GameFilter{CategoryID: q.Get("categoryId"), Search: q.Get("search")}
	var err error
	if f.ActiveOnly, err = queryBool(r, "active", false); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	if f.Limit, err = queryInt(r, "limit", 0); err != nil {
		h.rw.fail(w, r, err)
		return
	}

	page, err := h.svc.ListGames(r.Context(), f)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", page)
}

// HandleGetGame handles GET /games/{id}.
func (h *CatalogHandler) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", g)
}

// HandleCreateGame handles POST /games. Games are active unless isActive is
// explicitly false.
func (h *CatalogHandler) HandleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := h.in.body(r, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	g := model.Game{Title: req.Title, CategoryID: req.CategoryID, Position: req.Position, IsActive: true}
	if req.IsActive != nil {
		g.IsActive = *req.IsActive
	}

	created, err := h.svc.CreateGame(r.Context(), g)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusCreated, "game created", created)
}

// HandleUpdateGame handles PUT /games/{id}.
func (h *CatalogHandler) HandleUpdateGame(w http.ResponseWriter, r *http.Request) {
	var req gamePatchRequest
	if err := h.in.body(r, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	g, err := h.svc.UpdateGame(r.Context(), chi.URLParam(r, "id"), service.GamePatch{
		Title:      req.Title,
		CategoryID: req.CategoryID,
		IsActive:   req.IsActive,
	})
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "game updated", g)
}

// HandleDeactivateGame handles DELETE /games/{id}. The game is kept but
// deactivated and loses its position.
func (h *CatalogHandler) HandleDeactivateGame(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeactivateGame(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "game deactivated", nil)
}
