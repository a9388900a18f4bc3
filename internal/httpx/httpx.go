// Package httpx has the small request/response helpers the handlers share.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dgyard/backend/internal/apperr"
)

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validationf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps the error taxonomy onto HTTP statuses. Anything outside
// the taxonomy is a 500 with the detail kept server-side.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if log == nil {
			log = slog.Default()
		}
		log.Error("request failed", "error", err)
		msg = "internal error"
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}
