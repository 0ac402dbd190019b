package sos

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"trafficSOS/internal/domain"
	"trafficSOS/internal/service"
	"trafficSOS/pkg/e"
)

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	l := h.log(r)

	var rejected *service.RejectedError
	if errors.As(err, &rejected) {
		l.Warn("sos rejected",
			slog.Int("stage", rejected.Result.FailedStage),
			slog.String("reason", rejected.Result.Reason),
		)
		h.writeJSON(w, http.StatusUnprocessableEntity, domain.SOSRejected{
			Error:  "rejected",
			Reason: rejected.Result.Reason,
			Stage:  rejected.Result.FailedStage,
			Score:  rejected.Result.Score,
		})
		return
	}

	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, e.ErrInvalidCaseID):
		status, msg = http.StatusBadRequest, "invalid accident id"
	case errors.Is(err, e.ErrInvalidStatus):
		status, msg = http.StatusBadRequest, "invalid status"
	case errors.Is(err, e.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "invalid input"
	case errors.Is(err, e.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, e.ErrIllegalTransit):
		status, msg = http.StatusConflict, "illegal status transition"
	case errors.Is(err, e.ErrConflict):
		status, msg = http.StatusConflict, "conflict"
	case errors.Is(err, e.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, e.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, e.ErrDeadline):
		status, msg = http.StatusServiceUnavailable, "deadline exceeded"
	}

	if status >= http.StatusInternalServerError {
		l.Error("handler error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	} else {
		l.Info("request refused",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("json encode failed", slog.Any("error", err))
	}
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
