package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"trafficSOS/internal/domain"
	"trafficSOS/internal/revalidator"
	"trafficSOS/internal/service"
	mock_service "trafficSOS/internal/service/mocks"
	"trafficSOS/internal/storage/memory"
	"trafficSOS/pkg/e"
)

// --- helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureOutbox struct {
	mu     sync.Mutex
	events []domain.CaseEvent
	err    error
}

func (c *captureOutbox) Enqueue(_ context.Context, ev domain.CaseEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *captureOutbox) snapshot() []domain.CaseEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.CaseEvent(nil), c.events...)
}

var (
	victim    = domain.Principal{UserID: "victim-1", Role: domain.RoleUser}
	operator  = domain.Principal{UserID: "op-1", Role: domain.RoleOperator}
	responder = domain.Principal{UserID: "resp-1", Role: domain.RoleResponder}
)

func scenarioA() domain.SOSPayload {
	return domain.SOSPayload{
		Location: domain.GeoPoint{Lat: 18.5204, Lng: 73.8567},
		Metrics: domain.CrashMetrics{
			GForce:           9.2,
			SpeedBefore:      45,
			SpeedAfter:       0,
			MLConfidence:     0.98,
			CrashType:        domain.CrashConfirmed,
			RolloverDetected: true,
		},
		MedicalProfile: domain.MedicalProfile{BloodType: "O+", Allergies: []string{"penicillin"}},
	}
}

func newManager(t *testing.T, store service.CaseStore, outbox service.Outbox, opts ...service.Option) *service.LifecycleManager {
	t.Helper()
	cfg := service.LifecycleConfig{Env: "local", Retention: 24 * time.Hour, SweepInterval: time.Hour}
	return service.NewLifecycleManager(newTestLogger(), cfg, store, outbox, revalidator.New(revalidator.DefaultThresholds()), opts...)
}

func mustCreate(t *testing.T, m *service.LifecycleManager) domain.CaseRecord {
	t.Helper()
	rec, err := m.Create(context.Background(), victim, scenarioA())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec
}

// --- Create ---

func TestLifecycle_Create_ScenarioA(t *testing.T) {
	t.Parallel()

	out := &captureOutbox{}
	m := newManager(t, memory.NewStore(), out)

	rec := mustCreate(t, m)

	if !domain.ValidAccidentID(rec.AccidentID) {
		t.Fatalf("bad accident id %q", rec.AccidentID)
	}
	if rec.Status != domain.StatusDetected || rec.VictimUserID != victim.UserID {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Location != scenarioA().Location || rec.Metrics.GForce != 9.2 {
		t.Fatalf("evidence not preserved: %+v", rec)
	}

	events := out.snapshot()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != domain.EventCaseCreated || ev.Topic != "case/"+rec.AccidentID {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Envelope.Auth.Token != "" || ev.Envelope.Payload.AccidentID != rec.AccidentID {
		t.Fatalf("event envelope = %+v", ev.Envelope)
	}
}

func TestLifecycle_Create_RejectedScenarioB(t *testing.T) {
	t.Parallel()

	out := &captureOutbox{}
	store := memory.NewStore()
	m := newManager(t, store, out)

	in := scenarioA()
	in.Metrics.GForce = 1.0
	_, err := m.Create(context.Background(), victim, in)

	var rej *service.RejectedError
	if !errors.As(err, &rej) || rej.Result.FailedStage != 1 || rej.Result.Score != 0 {
		t.Fatalf("err = %v, want stage-1 rejection", err)
	}
	if !errors.Is(err, e.ErrRejected) {
		t.Fatalf("rejection must match ErrRejected")
	}
	if store.Len() != 0 || len(out.snapshot()) != 0 {
		t.Fatalf("rejected evidence produced side effects")
	}
}

func TestLifecycle_Create_RetriesIDCollision(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mock_service.NewMockCaseStore(ctrl)
	outbox := mock_service.NewMockOutbox(ctrl)

	var ids []string
	gomock.InOrder(
		store.EXPECT().Insert(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec *domain.CaseRecord) error {
				ids = append(ids, rec.AccidentID)
				return e.ErrUniqueViolation
			}),
		store.EXPECT().Insert(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec *domain.CaseRecord) error {
				ids = append(ids, rec.AccidentID)
				return nil
			}),
	)
	outbox.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	m := newManager(t, store, outbox)
	rec, err := m.Create(context.Background(), victim, scenarioA())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(ids) != 2 || rec.AccidentID != ids[1] {
		t.Fatalf("ids=%v rec=%s", ids, rec.AccidentID)
	}
}

func TestLifecycle_Create_StoreError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mock_service.NewMockCaseStore(ctrl)
	outbox := mock_service.NewMockOutbox(ctrl)
	store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(e.ErrInternal).Times(1)
	outbox.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Times(0)

	m := newManager(t, store, outbox)
	if _, err := m.Create(context.Background(), victim, scenarioA()); !errors.Is(err, e.ErrInternal) {
		t.Fatalf("err = %v, want ErrInternal", err)
	}
}

func TestLifecycle_Create_OutboxFailureDoesNotFail(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rec := mock_service.NewMockRecorder(ctrl)
	rec.EXPECT().CaseCreated().Times(1)
	rec.EXPECT().OutboxFailed().Times(1)

	out := &captureOutbox{err: errors.New("redis down")}
	store := memory.NewStore()
	m := newManager(t, store, out, service.WithRecorder(rec))

	if _, err := m.Create(context.Background(), victim, scenarioA()); err != nil {
		t.Fatalf("fan-out failure surfaced to caller: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("case not durably stored")
	}
}

func TestLifecycle_Create_Forbidden(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	authz := mock_service.NewMockAuthorizer(ctrl)
	authz.EXPECT().
		Authorize(gomock.Any(), domain.AccessRequest{Action: domain.ActionCreate, Principal: victim}).
		Return(e.ErrForbidden)

	m := newManager(t, memory.NewStore(), &captureOutbox{}, service.WithAuthorizer(authz))
	if _, err := m.Create(context.Background(), victim, scenarioA()); !errors.Is(err, e.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

// --- Get / List ---

func TestLifecycle_GetValidatesFormatBeforeLookup(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mock_service.NewMockCaseStore(ctrl)
	store.EXPECT().Get(gomock.Any(), gomock.Any()).Times(0)

	m := newManager(t, store, &captureOutbox{})
	for _, id := range []string{"", "ACC-26-ABCDEF", "acc-2026-abcdef", "ACC-2026-ABCDE!"} {
		if _, err := m.Get(context.Background(), operator, id); !errors.Is(err, e.ErrInvalidCaseID) {
			t.Errorf("Get(%q) err = %v, want ErrInvalidCaseID", id, err)
		}
	}
}

func TestLifecycle_GetUnknown(t *testing.T) {
	t.Parallel()

	m := newManager(t, memory.NewStore(), &captureOutbox{})
	if _, err := m.Get(context.Background(), operator, "ACC-2026-ZZZZZZ"); !errors.Is(err, e.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLifecycle_ListMatchesStore(t *testing.T) {
	t.Parallel()

	m := newManager(t, memory.NewStore(), &captureOutbox{})
	a := mustCreate(t, m)
	_ = mustCreate(t, m)
	if _, err := m.Cancel(context.Background(), victim, a.AccidentID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	all, err := m.List(context.Background(), operator, domain.ListCasesRequest{})
	if err != nil || all.Total != 2 {
		t.Fatalf("list: total=%d err=%v", all.Total, err)
	}
	cancelled, _ := m.List(context.Background(), operator, domain.ListCasesRequest{Status: domain.StatusCancelled})
	if cancelled.Total != 1 || cancelled.Cases[0].AccidentID != a.AccidentID {
		t.Fatalf("cancelled filter = %+v", cancelled)
	}
	if _, err := m.List(context.Background(), operator, domain.ListCasesRequest{Status: "BOGUS"}); !errors.Is(err, e.ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

// --- transitions ---

func TestLifecycle_CancelOnlyFromDetected(t *testing.T) {
	t.Parallel()

	out := &captureOutbox{}
	m := newManager(t, memory.NewStore(), out)
	rec := mustCreate(t, m)
	ctx := context.Background()

	got, err := m.Cancel(ctx, victim, rec.AccidentID)
	if err != nil || got.Status != domain.StatusCancelled {
		t.Fatalf("cancel: status=%s err=%v", got.Status, err)
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Cancel(ctx, victim, rec.AccidentID); !errors.Is(err, e.ErrIllegalTransit) {
			t.Fatalf("repeat cancel #%d err = %v, want ErrIllegalTransit", i, err)
		}
	}

	events := out.snapshot()
	if len(events) != 2 || events[1].Kind != domain.EventStatusChanged || events[1].PreviousStatus != domain.StatusDetected {
		t.Fatalf("events = %+v", events)
	}
	if events[1].Topic != "case/"+rec.AccidentID+"/status" {
		t.Fatalf("topic = %s", events[1].Topic)
	}

	other := mustCreate(t, m)
	if _, err := m.SetStatus(ctx, operator, other.AccidentID, domain.StatusDispatched, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, err := m.Cancel(ctx, victim, other.AccidentID); !errors.Is(err, e.ErrIllegalTransit) {
		t.Fatalf("cancel after dispatch err = %v", err)
	}
}

func TestLifecycle_ResolvedTwiceKeepsResolvedAt(t *testing.T) {
	t.Parallel()

	var clock = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	out := &captureOutbox{}
	m := newManager(t, memory.NewStore(), out, service.WithClock(func() time.Time { return clock }))
	rec := mustCreate(t, m)
	ctx := context.Background()

	first, err := m.SetStatus(ctx, operator, rec.AccidentID, domain.StatusResolved, nil)
	if err != nil || first.ResolvedAt == nil {
		t.Fatalf("resolve: %+v err=%v", first, err)
	}

	clock = clock.Add(time.Hour)
	second, err := m.SetStatus(ctx, operator, rec.AccidentID, domain.StatusResolved, nil)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !second.ResolvedAt.Equal(*first.ResolvedAt) {
		t.Fatalf("resolvedAt changed: %v -> %v", first.ResolvedAt, second.ResolvedAt)
	}
	if len(out.snapshot()) != 2 {
		t.Fatalf("idempotent resolve published again")
	}

	if _, err := m.Cancel(ctx, victim, rec.AccidentID); !errors.Is(err, e.ErrIllegalTransit) {
		t.Fatalf("cancel after resolve err = %v", err)
	}
}

func TestLifecycle_VersionGrowsWithEachTransition(t *testing.T) {
	t.Parallel()

	out := &captureOutbox{}
	m := newManager(t, memory.NewStore(), out)
	rec := mustCreate(t, m)
	ctx := context.Background()
	if rec.Version != 1 {
		t.Fatalf("created version = %d, want 1", rec.Version)
	}

	for _, st := range []domain.CaseStatus{domain.StatusDispatched, domain.StatusEnRoute, domain.StatusResolved, domain.StatusResolved} {
		if _, err := m.SetStatus(ctx, operator, rec.AccidentID, st, nil); err != nil {
			t.Fatalf("set %s: %v", st, err)
		}
	}

	got, err := m.Get(ctx, operator, rec.AccidentID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 4 {
		t.Fatalf("version = %d, want 4 (repeated RESOLVED is a no-op)", got.Version)
	}

	events := out.snapshot()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	for i, ev := range events {
		if ev.Version != int64(i+1) || ev.Envelope.Payload.Version != ev.Version {
			t.Fatalf("event %d version = %d payload = %d", i, ev.Version, ev.Envelope.Payload.Version)
		}
	}
}

func TestLifecycle_IllegalTransitionsLeaveStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	// path to reach each source status from DETECTED
	paths := map[domain.CaseStatus][]domain.CaseStatus{
		domain.StatusDetected:   nil,
		domain.StatusDispatched: {domain.StatusDispatched},
		domain.StatusEnRoute:    {domain.StatusDispatched, domain.StatusEnRoute},
		domain.StatusArrived:    {domain.StatusDispatched, domain.StatusEnRoute, domain.StatusArrived},
		domain.StatusResolved:   {domain.StatusResolved},
		domain.StatusCancelled:  {domain.StatusCancelled},
	}

	for from, path := range paths {
		for _, to := range domain.AllStatuses {
			if domain.CanTransition(from, to) {
				continue
			}
			m := newManager(t, memory.NewStore(), &captureOutbox{})
			rec := mustCreate(t, m)
			for _, step := range path {
				if _, err := m.SetStatus(ctx, operator, rec.AccidentID, step, nil); err != nil {
					t.Fatalf("setup %s: %v", step, err)
				}
			}

			if _, err := m.SetStatus(ctx, operator, rec.AccidentID, to, nil); !errors.Is(err, e.ErrIllegalTransit) {
				t.Errorf("%s -> %s err = %v, want ErrIllegalTransit", from, to, err)
			}
			got, _ := m.Get(ctx, operator, rec.AccidentID)
			if got.Status != from {
				t.Errorf("%s -> %s changed status to %s", from, to, got.Status)
			}
		}
	}
}

func TestLifecycle_SetStatusRejectsOutOfEnumBeforeLookup(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mock_service.NewMockCaseStore(ctrl)
	store.EXPECT().Get(gomock.Any(), gomock.Any()).Times(0)

	m := newManager(t, store, &captureOutbox{})
	_, err := m.SetStatus(context.Background(), operator, "ACC-2026-ABCDEF", "FLYING", nil)
	if !errors.Is(err, e.ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestLifecycle_DispatchAttachesResponder(t *testing.T) {
	t.Parallel()

	m := newManager(t, memory.NewStore(), &captureOutbox{})
	ctx := context.Background()

	a := mustCreate(t, m)
	got, err := m.SetStatus(ctx, responder, a.AccidentID, domain.StatusDispatched, nil)
	if err != nil || got.ResponderID == nil || *got.ResponderID != responder.UserID {
		t.Fatalf("responder principal not attached: %+v err=%v", got, err)
	}

	b := mustCreate(t, m)
	amb := "ambulance-7"
	got, err = m.SetStatus(ctx, operator, b.AccidentID, domain.StatusDispatched, &amb)
	if err != nil || got.ResponderID == nil || *got.ResponderID != amb {
		t.Fatalf("explicit responder not attached: %+v err=%v", got, err)
	}
}

func TestLifecycle_CASConflictSurfaces(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mock_service.NewMockCaseStore(ctrl)
	outbox := mock_service.NewMockOutbox(ctrl)
	store.EXPECT().Get(gomock.Any(), "ACC-2026-ABCDEF").Return(&domain.CaseRecord{
		AccidentID:   "ACC-2026-ABCDEF",
		VictimUserID: victim.UserID,
		Status:       domain.StatusDetected,
	}, nil)
	store.EXPECT().Update(gomock.Any(), gomock.Any(), domain.StatusDetected).Return(e.ErrConflict)
	outbox.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Times(0)

	m := newManager(t, store, outbox)
	if _, err := m.Cancel(context.Background(), victim, "ACC-2026-ABCDEF"); !errors.Is(err, e.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

// A cancel racing a dispatch on the same case must leave exactly one winner.
func TestLifecycle_ConcurrentCancelAndDispatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		m := newManager(t, memory.NewStore(), &captureOutbox{})
		rec := mustCreate(t, m)

		var wg sync.WaitGroup
		var cancelErr, dispatchErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = m.Cancel(ctx, victim, rec.AccidentID)
		}()
		go func() {
			defer wg.Done()
			_, dispatchErr = m.SetStatus(ctx, operator, rec.AccidentID, domain.StatusDispatched, nil)
		}()
		wg.Wait()

		if (cancelErr == nil) == (dispatchErr == nil) {
			t.Fatalf("want exactly one winner: cancel=%v dispatch=%v", cancelErr, dispatchErr)
		}
		got, _ := m.Get(ctx, operator, rec.AccidentID)
		if cancelErr == nil && got.Status != domain.StatusCancelled {
			t.Fatalf("cancel won but status = %s", got.Status)
		}
		if dispatchErr == nil && got.Status != domain.StatusDispatched {
			t.Fatalf("dispatch won but status = %s", got.Status)
		}
	}
}

func TestLifecycle_TransitionForbidden(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	authz := mock_service.NewMockAuthorizer(ctrl)
	authz.EXPECT().Authorize(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.AccessRequest) error {
			if req.Action == domain.ActionCancel && req.Principal.UserID != req.OwnerID {
				return e.ErrForbidden
			}
			return nil
		}).AnyTimes()

	m := newManager(t, memory.NewStore(), &captureOutbox{}, service.WithAuthorizer(authz))
	rec := mustCreate(t, m)

	stranger := domain.Principal{UserID: "someone-else", Role: domain.RoleUser}
	if _, err := m.Cancel(context.Background(), stranger, rec.AccidentID); !errors.Is(err, e.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	got, _ := m.Get(context.Background(), operator, rec.AccidentID)
	if got.Status != domain.StatusDetected {
		t.Fatalf("forbidden cancel changed status to %s", got.Status)
	}
}

func TestLifecycle_AuthorizeReadUsesReadAction(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	authz := mock_service.NewMockAuthorizer(ctrl)
	authz.EXPECT().Authorize(gomock.Any(), domain.AccessRequest{Action: domain.ActionRead, Principal: victim}).Return(nil)
	authz.EXPECT().Authorize(gomock.Any(), domain.AccessRequest{Action: domain.ActionRead, Principal: domain.Principal{UserID: "x"}}).
		Return(e.ErrForbidden)

	m := newManager(t, memory.NewStore(), &captureOutbox{}, service.WithAuthorizer(authz))
	if err := m.AuthorizeRead(context.Background(), victim); err != nil {
		t.Fatalf("victim read: %v", err)
	}
	if err := m.AuthorizeRead(context.Background(), domain.Principal{UserID: "x"}); !errors.Is(err, e.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}
