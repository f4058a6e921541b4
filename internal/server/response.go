package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ahmethakanbesel/market-ingest/internal/apperror"
)

// APIResponse is the envelope for every JSON body. Code and RequestID are
// only set on errors, so a client can quote the id when reporting one.
type APIResponse[T any] struct {
	Message   string        `json:"message"`
	Code      apperror.Code `json:"code,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Data      T             `json:"data"`
}

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[T]{
		Message: "ok",
		Data:    data,
	})
}

// writeError renders err through apperror.From. Internal errors are logged
// with their cause; the client only sees the generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperror.From(err)
	id := requestIDFrom(r.Context())
	if ae.Code() == apperror.Internal {
		slog.ErrorContext(r.Context(), "request failed", //nolint:gosec // structured logging
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.HTTPStatus())
	_ = json.NewEncoder(w).Encode(APIResponse[string]{
		Message:   ae.Message(),
		Code:      ae.Code(),
		RequestID: id,
	})
}
