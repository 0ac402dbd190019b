package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"trafficSOS/pkg/e"
)

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	l := h.log(r)

	switch {
	case errors.Is(err, e.ErrForbidden):
		l.Warn("access denied", slog.String("path", r.URL.Path), slog.Any("error", err))
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, e.ErrInvalidInput):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid input"})
	case errors.Is(err, e.ErrDeadline):
		l.Error("handler error", slog.String("path", r.URL.Path), slog.Any("error", err))
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable"})
	default:
		l.Error("handler error", slog.String("path", r.URL.Path), slog.Any("error", err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// parseInt returns def for an empty string and false for a malformed one.
func parseInt(s string, def int) (int, bool) {
	if s == "" {
		return def, true
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return i, true
}
