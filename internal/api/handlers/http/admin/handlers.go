// Package admin serves operator-only endpoints.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"trafficSOS/internal/domain"
	"trafficSOS/internal/middleware"
)

//go:generate mockgen -source=handlers.go -destination=mocks/mock.go
type StatsGetter interface {
	GetStats(ctx context.Context, p domain.Principal, req domain.StatsRequest) (*domain.CaseStats, error)
}

type Handler struct {
	logger *slog.Logger
	Stats  StatsGetter
}

func NewHandler(logger *slog.Logger, stats StatsGetter) *Handler {
	return &Handler{
		logger: logger,
		Stats:  stats,
	}
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	reqID := chimw.GetReqID(r.Context())
	if reqID == "" {
		return h.logger
	}
	return h.logger.With(slog.String("request_id", reqID))
}

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("AdminStats", slog.String("query", r.URL.RawQuery), slog.String("remote", r.RemoteAddr))

	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	minutes, ok := parseInt(r.URL.Query().Get("minutes"), domain.DefaultStatsMinutes)
	if !ok || minutes <= 0 || minutes > domain.MaxStatsMinutes {
		l.Warn("invalid minutes", slog.String("minutes", r.URL.Query().Get("minutes")))
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "minutes must be 1-10080"})
		return
	}

	stats, err := h.Stats.GetStats(r.Context(), p, domain.StatsRequest{Minutes: minutes})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("stats success", slog.Int("minutes", minutes), slog.Int64("total", stats.Total))
	h.writeJSON(w, http.StatusOK, stats)
}
