package api

import (
	"net/http"
)

type publishRequest struct {
	Enabled *bool `json:"enabled"`
}

// CDNHandler serves the snapshot version clients use for cache busting.
type CDNHandler struct {
	svc CatalogService
	rw  *responder
	in  *decoder
}

// HandleVersion handles GET /cdn/version.
func (h *CDNHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.CDNVersion(r.Context())
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "", v)
}

// HandlePublish handles POST /cdn/publish. It bumps the version; an empty
// body keeps the enabled flag.
func (h *CDNHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if r.ContentLength != 0 {
		if err := h.in.body(r, &req); err != nil {
			h.rw.fail(w, r, err)
			return
		}
	}
	v, err := h.svc.PublishCDN(r.Context(), req.Enabled)
	if err != nil {
		h.rw.fail(w, r, err)
		return
	}
	h.rw.ok(w, http.StatusOK, "snapshot version published", v)
}
