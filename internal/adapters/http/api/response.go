package api

import (
	"net/http"
	"runtime/debug"

	"github.com/goccy/go-json"

	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/pkg/logger"
)

// envelope is the body of every successful response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

type errorBody struct {
	Message string              `json:"message"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
	Stack   string              `json:"stack,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// responder renders envelopes and maps error kinds to statuses.
type responder struct {
	production bool
	log        logger.Logger
}

func (rw *responder) ok(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: msg, Data: data})
}

func (rw *responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(apperr.KindOf(err))
	body := errorBody{Message: apperr.Message(err), Errors: apperr.FieldsOf(err)}

	if code >= http.StatusInternalServerError {
		rw.log.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
		if rw.production {
			body.Message = http.StatusText(code)
		}
	} else {
		rw.log.Debug(r.Context(), "request rejected",
			logger.String("path", r.URL.Path),
			logger.Int("status", code),
			logger.Error(err))
	}
	if !rw.production {
		body.Stack = string(debug.Stack())
	}
	writeJSON(w, code, errorEnvelope{Error: body})
}

// status writes an error envelope for conditions raised by the router
// itself, like rate limiting or unknown routes.
func (rw *responder) status(w http.ResponseWriter, _ *http.Request, code int, msg string) {
	writeJSON(w, code, errorEnvelope{Error: errorBody{Message: msg}})
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
