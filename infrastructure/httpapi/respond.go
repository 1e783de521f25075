package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"chat-core/errors"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// statusOf maps the sentinel errors to HTTP statuses. Order matters:
// ErrNotGroupChat and ErrInvalidPassword both wrap ErrInvalidArgument.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidCredentials), errors.Is(err, errors.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrAlreadyExists), errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Invalid("malformed body: %v", err)
	}
	return nil
}
