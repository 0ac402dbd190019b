package sos

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"trafficSOS/internal/domain"
	"trafficSOS/internal/middleware"
	"trafficSOS/pkg/validator"
)

const (
	maxBodyBytes = 64 << 10
	defaultLimit = 50
	maxLimit     = 200
)

//go:generate mockgen -source=handlers.go -destination=mocks/mock.go
type Cases interface {
	Create(ctx context.Context, victim domain.Principal, in domain.SOSPayload) (domain.CaseRecord, error)
	Get(ctx context.Context, p domain.Principal, accidentID string) (domain.CaseRecord, error)
	List(ctx context.Context, p domain.Principal, filter domain.ListCasesRequest) (domain.ListCasesResponse, error)
	Cancel(ctx context.Context, p domain.Principal, accidentID string) (domain.CaseRecord, error)
	SetStatus(ctx context.Context, p domain.Principal, accidentID string, target domain.CaseStatus, responderID *string) (domain.CaseRecord, error)
	AuthorizeRead(ctx context.Context, p domain.Principal) error
}

type Handler struct {
	logger *slog.Logger
	env    string
	Cases  Cases
	Events EventSource
}

func NewHandler(logger *slog.Logger, env string, cases Cases, events EventSource) *Handler {
	return &Handler{
		logger: logger,
		env:    env,
		Cases:  cases,
		Events: events,
	}
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	reqID := chimw.GetReqID(r.Context())
	if reqID == "" {
		return h.logger
	}
	return h.logger.With(slog.String("request_id", reqID))
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	return p, ok
}

// decodeStrict rejects unknown fields and anything after the first JSON value.
func decodeStrict(r *http.Request, w http.ResponseWriter, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func (h *Handler) SOSCreate(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("SOSCreate", slog.String("remote", r.RemoteAddr))

	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var env domain.Envelope[domain.SOSPayload]
	if err := decodeStrict(r, w, &env); err != nil {
		l.Warn("invalid JSON", slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := validator.ValidateStruct(&env); err != nil {
		l.Warn("envelope validation failed", slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if env.Auth.UserID != p.UserID {
		l.Warn("envelope identity does not match bearer",
			slog.String("envelope_user", env.Auth.UserID),
			slog.String("bearer_user", p.UserID),
		)
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "envelope identity does not match token"})
		return
	}

	l.Info("sos received",
		slog.String("victim", p.UserID),
		slog.String("envelope_request_id", env.Meta.RequestID),
		slog.Float64("g_force", env.Payload.Metrics.GForce),
		slog.String("crash_type", string(env.Payload.Metrics.CrashType)),
	)

	rec, err := h.Cases.Create(r.Context(), p, env.Payload)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("sos accepted", slog.String("accident_id", rec.AccidentID))
	h.writeJSON(w, http.StatusCreated, domain.NewEnvelope(h.env, p, domain.SOSCreated{
		AccidentID: rec.AccidentID,
		Status:     rec.Status,
	}))
}

func (h *Handler) SOSList(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("SOSList", slog.String("query", r.URL.RawQuery), slog.String("remote", r.RemoteAddr))

	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := domain.ListCasesRequest{
		Status: domain.CaseStatus(strings.ToUpper(q.Get("status"))),
		Limit:  parseInt(q.Get("limit"), defaultLimit),
		Offset: parseInt(q.Get("offset"), 0),
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
		l.Warn("limit capped", slog.Int("limit", filter.Limit))
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	resp, err := h.Cases.List(r.Context(), p, filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("cases listed", slog.Int("count", len(resp.Cases)), slog.Int("total", resp.Total))
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SOSGet(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("SOSGet", slog.String("remote", r.RemoteAddr))

	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	rec, err := h.Cases.Get(r.Context(), p, chi.URLParam(r, "accidentId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) SOSCancel(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("SOSCancel", slog.String("remote", r.RemoteAddr))

	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "accidentId")
	rec, err := h.Cases.Cancel(r.Context(), p, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("case cancelled", slog.String("accident_id", id), slog.String("by", p.UserID))
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) SOSSetStatus(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("SOSSetStatus", slog.String("remote", r.RemoteAddr))

	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req domain.StatusUpdateRequest
	if err := decodeStrict(r, w, &req); err != nil {
		l.Warn("invalid JSON", slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := validator.ValidateStruct(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id := chi.URLParam(r, "accidentId")
	rec, err := h.Cases.SetStatus(r.Context(), p, id, req.Status, req.ResponderID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("case status set",
		slog.String("accident_id", id),
		slog.String("status", string(rec.Status)),
		slog.String("by", p.UserID),
	)
	h.writeJSON(w, http.StatusOK, rec)
}
