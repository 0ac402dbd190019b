package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"trafficSOS/internal/domain"
	"trafficSOS/internal/service"
	mock_service "trafficSOS/internal/service/mocks"
	"trafficSOS/internal/storage/memory"
)

func TestSweep_RemovesOnlyExpiredTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := created
	m := newManager(t, memory.NewStore(), &captureOutbox{}, service.WithClock(func() time.Time { return clock }))

	resolved := mustCreate(t, m)
	cancelled := mustCreate(t, m)
	enRoute := mustCreate(t, m)
	_, _ = m.SetStatus(ctx, operator, resolved.AccidentID, domain.StatusResolved, nil)
	_, _ = m.Cancel(ctx, victim, cancelled.AccidentID)
	_, _ = m.SetStatus(ctx, operator, enRoute.AccidentID, domain.StatusDispatched, nil)
	_, _ = m.SetStatus(ctx, operator, enRoute.AccidentID, domain.StatusEnRoute, nil)

	clock = created.Add(25 * time.Hour)
	fresh := mustCreate(t, m)
	_, _ = m.SetStatus(ctx, operator, fresh.AccidentID, domain.StatusResolved, nil)

	removed, err := m.Sweep(ctx, clock)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	list, _ := m.List(ctx, operator, domain.ListCasesRequest{})
	kept := map[string]bool{}
	for _, c := range list.Cases {
		kept[c.AccidentID] = true
	}
	if !kept[enRoute.AccidentID] || !kept[fresh.AccidentID] || len(kept) != 2 {
		t.Fatalf("unexpected survivors: %v", kept)
	}
}

func TestSweep_WithinRetentionKeepsAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t, memory.NewStore(), &captureOutbox{})
	rec := mustCreate(t, m)
	_, _ = m.SetStatus(ctx, operator, rec.AccidentID, domain.StatusResolved, nil)

	removed, err := m.Sweep(ctx, time.Now().Add(23*time.Hour))
	if err != nil || removed != 0 {
		t.Fatalf("removed=%d err=%v", removed, err)
	}
}

func TestSweep_RechecksStatusUnderLock(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	old := time.Now().Add(-48 * time.Hour)
	store := mock_service.NewMockCaseStore(ctrl)
	store.EXPECT().ListExpired(gomock.Any(), gomock.Any()).Return([]string{"ACC-2026-AAAAAA", "ACC-2026-BBBBBB"}, nil)
	// listed as terminal but the stored record says otherwise
	store.EXPECT().Get(gomock.Any(), "ACC-2026-AAAAAA").Return(&domain.CaseRecord{
		AccidentID: "ACC-2026-AAAAAA", Status: domain.StatusArrived, CreatedAt: old,
	}, nil)
	store.EXPECT().Get(gomock.Any(), "ACC-2026-BBBBBB").Return(&domain.CaseRecord{
		AccidentID: "ACC-2026-BBBBBB", Status: domain.StatusCancelled, CreatedAt: old,
	}, nil)
	store.EXPECT().Delete(gomock.Any(), "ACC-2026-BBBBBB", domain.StatusCancelled).Return(nil)

	rec := mock_service.NewMockRecorder(ctrl)
	rec.EXPECT().Swept(1)

	m := newManager(t, store, mock_service.NewMockOutbox(ctrl), service.WithRecorder(rec))
	removed, err := m.Sweep(context.Background(), time.Now())
	if err != nil || removed != 1 {
		t.Fatalf("removed=%d err=%v", removed, err)
	}
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := service.LifecycleConfig{Env: "local", Retention: time.Hour, SweepInterval: time.Millisecond}
	m := service.NewLifecycleManager(newTestLogger(), cfg, memory.NewStore(), &captureOutbox{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
