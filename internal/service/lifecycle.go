package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

const (
	tracerName      = "trafficSOS/internal/service"
	maxIDCollisions = 5
)

// RejectedError is returned by Create when revalidation fails.
type RejectedError struct {
	Result domain.ValidationResult
}

func (r *RejectedError) Error() string {
	return fmt.Sprintf("stage %d: %s", r.Result.FailedStage, r.Result.Reason)
}

func (r *RejectedError) Unwrap() error { return e.ErrRejected }

type LifecycleConfig struct {
	Env           string
	Retention     time.Duration
	SweepInterval time.Duration
}

type Option func(*LifecycleManager)

func WithAuthorizer(a Authorizer) Option {
	return func(m *LifecycleManager) { m.authz = a }
}

func WithRecorder(r Recorder) Option {
	return func(m *LifecycleManager) { m.metrics = r }
}

func WithClock(now func() time.Time) Option {
	return func(m *LifecycleManager) { m.now = now }
}

// LifecycleManager is the only writer of case status.
type LifecycleManager struct {
	logger    *slog.Logger
	cfg       LifecycleConfig
	store     CaseStore
	outbox    Outbox
	validator Revalidator
	authz     Authorizer
	metrics   Recorder
	locks     *keyedMutex
	tracer    trace.Tracer
	now       func() time.Time
}

func NewLifecycleManager(logger *slog.Logger, cfg LifecycleConfig, store CaseStore, outbox Outbox, validator Revalidator, opts ...Option) *LifecycleManager {
	m := &LifecycleManager{
		logger:    logger,
		cfg:       cfg,
		store:     store,
		outbox:    outbox,
		validator: validator,
		authz:     allowAll{},
		metrics:   nopRecorder{},
		locks:     newKeyedMutex(),
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create revalidates the evidence and stores a new DETECTED case.
func (m *LifecycleManager) Create(ctx context.Context, victim domain.Principal, in domain.SOSPayload) (domain.CaseRecord, error) {
	const op = "service.Create"

	ctx, span := m.tracer.Start(ctx, "lifecycle.Create", trace.WithAttributes(attribute.String("victim", victim.UserID)))
	defer span.End()

	if err := m.authz.Authorize(ctx, domain.AccessRequest{Action: domain.ActionCreate, Principal: victim}); err != nil {
		return domain.CaseRecord{}, e.Wrap(op, err)
	}

	res := m.validator.Validate(in.Metrics)
	span.SetAttributes(attribute.Float64("score", res.Score), attribute.Bool("valid", res.Valid))
	if !res.Valid {
		m.metrics.CaseRejected(res.FailedStage)
		m.logger.Warn("sos rejected",
			slog.String("victim", victim.UserID),
			slog.Int("stage", res.FailedStage),
			slog.String("reason", res.Reason),
			slog.Float64("score", res.Score),
		)
		return domain.CaseRecord{}, &RejectedError{Result: res}
	}

	now := m.now()
	rec := &domain.CaseRecord{
		VictimUserID:   victim.UserID,
		Location:       in.Location,
		Metrics:        in.Metrics,
		MedicalProfile: in.MedicalProfile,
		Status:         domain.StatusDetected,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}

	var err error
	for attempt := 0; attempt < maxIDCollisions; attempt++ {
		rec.AccidentID, err = domain.NewAccidentID(now)
		if err != nil {
			return domain.CaseRecord{}, e.Wrap(op, err)
		}
		err = m.store.Insert(ctx, rec)
		if !errors.Is(err, e.ErrUniqueViolation) {
			break
		}
		m.logger.Warn("accident id collision, regenerating", slog.String("accident_id", rec.AccidentID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.CaseRecord{}, e.Wrap(op, err)
	}

	span.SetAttributes(attribute.String("accident_id", rec.AccidentID))
	m.metrics.CaseCreated()
	m.logger.Info("case created",
		slog.String("accident_id", rec.AccidentID),
		slog.String("victim", victim.UserID),
		slog.String("crash_type", string(rec.Metrics.CrashType)),
		slog.Float64("score", res.Score),
	)

	m.publish(ctx, domain.EventCaseCreated, "", rec)
	return *rec.Clone(), nil
}

func (m *LifecycleManager) Get(ctx context.Context, p domain.Principal, accidentID string) (domain.CaseRecord, error) {
	const op = "service.Get"

	if !domain.ValidAccidentID(accidentID) {
		return domain.CaseRecord{}, e.Wrap(op, e.ErrInvalidCaseID)
	}
	if err := m.authz.Authorize(ctx, domain.AccessRequest{Action: domain.ActionRead, Principal: p}); err != nil {
		return domain.CaseRecord{}, e.Wrap(op, err)
	}

	rec, err := m.store.Get(ctx, accidentID)
	if err != nil {
		return domain.CaseRecord{}, e.Wrap(op, err)
	}
	return *rec, nil
}

func (m *LifecycleManager) List(ctx context.Context, p domain.Principal, filter domain.ListCasesRequest) (domain.ListCasesResponse, error) {
	const op = "service.List"

	if filter.Status != "" && !filter.Status.Valid() {
		return domain.ListCasesResponse{}, e.Wrap(op, e.ErrInvalidStatus)
	}
	if err := m.authz.Authorize(ctx, domain.AccessRequest{Action: domain.ActionRead, Principal: p}); err != nil {
		return domain.ListCasesResponse{}, e.Wrap(op, err)
	}

	recs, total, err := m.store.List(ctx, filter)
	if err != nil {
		return domain.ListCasesResponse{}, e.Wrap(op, err)
	}
	out := domain.ListCasesResponse{Cases: make([]domain.CaseRecord, 0, len(recs)), Total: total}
	for _, r := range recs {
		out.Cases = append(out.Cases, *r)
	}
	return out, nil
}

// Cancel is legal only from DETECTED. Repeated cancels keep failing with a conflict.
func (m *LifecycleManager) Cancel(ctx context.Context, p domain.Principal, accidentID string) (domain.CaseRecord, error) {
	return m.transition(ctx, p, accidentID, domain.ActionCancel, domain.StatusCancelled, nil)
}

// SetStatus applies an operator or responder transition. responderID is only
// used when entering DISPATCHED.
func (m *LifecycleManager) SetStatus(ctx context.Context, p domain.Principal, accidentID string, target domain.CaseStatus, responderID *string) (domain.CaseRecord, error) {
	if !target.Valid() {
		return domain.CaseRecord{}, e.Wrap("service.SetStatus", e.ErrInvalidStatus)
	}
	return m.transition(ctx, p, accidentID, domain.ActionSetStatus, target, responderID)
}

func (m *LifecycleManager) transition(ctx context.Context, p domain.Principal, accidentID string, action domain.Action, target domain.CaseStatus, responderID *string) (domain.CaseRecord, error) {
	op := "service." + string(action)

	if !domain.ValidAccidentID(accidentID) {
		return domain.CaseRecord{}, e.Wrap(op, e.ErrInvalidCaseID)
	}

	ctx, span := m.tracer.Start(ctx, "lifecycle.Transition", trace.WithAttributes(
		attribute.String("accident_id", accidentID),
		attribute.String("target", string(target)),
	))
	defer span.End()

	rec, prev, changed, err := m.applyLocked(ctx, p, accidentID, action, target, responderID)
	if err != nil {
		span.RecordError(err)
		return domain.CaseRecord{}, e.Wrap(op, err)
	}

	if changed {
		m.metrics.Transition(prev, rec.Status)
		m.logger.Info("case status changed",
			slog.String("accident_id", accidentID),
			slog.String("from", string(prev)),
			slog.String("to", string(rec.Status)),
			slog.String("by", p.UserID),
		)
		m.publish(ctx, domain.EventStatusChanged, prev, rec)
	}
	return *rec, nil
}

// applyLocked holds the record lock only for the read-check-write cycle.
func (m *LifecycleManager) applyLocked(ctx context.Context, p domain.Principal, accidentID string, action domain.Action, target domain.CaseStatus, responderID *string) (*domain.CaseRecord, domain.CaseStatus, bool, error) {
	unlock := m.locks.Lock(accidentID)
	defer unlock()

	rec, err := m.store.Get(ctx, accidentID)
	if err != nil {
		return nil, "", false, err
	}
	if err := m.authz.Authorize(ctx, domain.AccessRequest{
		Action:    action,
		Principal: p,
		OwnerID:   rec.VictimUserID,
		Target:    target,
	}); err != nil {
		return nil, "", false, err
	}

	prev := rec.Status
	if !domain.CanTransition(prev, target) {
		return nil, "", false, fmt.Errorf("%s -> %s: %w", prev, target, e.ErrIllegalTransit)
	}
	if prev == target {
		return rec, prev, false, nil
	}

	now := m.now()
	rec.Status = target
	rec.UpdatedAt = now
	rec.Version++
	if target == domain.StatusResolved && rec.ResolvedAt == nil {
		rec.ResolvedAt = &now
	}
	if target == domain.StatusDispatched {
		switch {
		case responderID != nil && *responderID != "":
			id := *responderID
			rec.ResponderID = &id
		case p.Role == domain.RoleResponder:
			id := p.UserID
			rec.ResponderID = &id
		}
	}

	if err := m.store.Update(ctx, rec, prev); err != nil {
		return nil, "", false, err
	}
	return rec, prev, true, nil
}

// publish runs after the write and outside the record lock. Failures are
// logged and never reach the caller.
func (m *LifecycleManager) publish(ctx context.Context, kind domain.EventKind, prev domain.CaseStatus, rec *domain.CaseRecord) {
	topic := domain.CaseTopic(rec.AccidentID)
	if kind == domain.EventStatusChanged {
		topic = domain.StatusTopic(rec.AccidentID)
	}
	ev := domain.CaseEvent{
		Topic:          topic,
		Kind:           kind,
		PreviousStatus: prev,
		Version:        rec.Version,
		Envelope: domain.NewEnvelope(m.cfg.Env, domain.Principal{
			UserID: rec.VictimUserID,
			Role:   domain.RoleUser,
		}, *rec.Clone()),
	}

	if err := m.outbox.Enqueue(context.WithoutCancel(ctx), ev); err != nil {
		m.metrics.OutboxFailed()
		m.logger.Error("enqueue case event failed",
			slog.String("accident_id", rec.AccidentID),
			slog.String("topic", topic),
			slog.Any("error", err),
		)
	}
}

// AuthorizeRead checks that p may read case data without touching a record.
// The event stream calls it before subscribing.
func (m *LifecycleManager) AuthorizeRead(ctx context.Context, p domain.Principal) error {
	if err := m.authz.Authorize(ctx, domain.AccessRequest{Action: domain.ActionRead, Principal: p}); err != nil {
		return e.Wrap("service.AuthorizeRead", err)
	}
	return nil
}

// Ping reports store readiness.
func (m *LifecycleManager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
