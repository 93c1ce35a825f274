package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/arcade/internal/app"
	"github.com/okian/arcade/internal/domain/model"
)

type configRequest struct {
	Key         string `json:"key" validate:"required,max=128"`
	Value       string `json:"value"`
	Description string `json:"description" validate:"max=500"`
}

type configPatchRequest struct {
	Value       *string `json:"value"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// ConfigHandler serves /system-configs.
type ConfigHandler struct {
	svc CatalogService
	rw  *responder
	in  *decoder
}

// HandleList handles GET /system-configs.
func (h *ConfigHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListConfigs(r.Context())
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", list)
}

// HandleGet handles GET /system-configs/{key}.
func (h *ConfigHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetConfig(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", c)
}

// HandleCreate handles POST /system-configs.
func (h *ConfigHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := h.in.body(r, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	c, err := h.svc.CreateConfig(r.Context(), model.SystemConfig{
		Key:         req.Key,
		Value:       req.Value,
		Description: req.Description,
	})
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusCreated, "config created", c)
}

// HandleUpdate handles PUT /system-configs/{key}.
func (h *ConfigHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req configPatchRequest
	if err := h.in.body(r, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	c, err := h.svc.UpdateConfig(r.Context(), chi.URLParam(r, "key"), service.ConfigPatch{
		Value:       req.Value,
		Description: req.Description,
	})
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "config updated", c)
}

// HandleDelete handles DELETE /system-configs/{key}.
func (h *ConfigHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteConfig(r.Context(), chi.URLParam(r, "key")); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "config deleted", nil)
}
