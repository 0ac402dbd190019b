package service

import (
	"context"
	"time"

	"trafficSOS/internal/domain"
)

//go:generate mockgen -source=service.go -destination=mocks/mock.go
type CaseStore interface {
	// Insert fails with e.ErrUniqueViolation when the accident id is taken.
	Insert(ctx context.Context, rec *domain.CaseRecord) error
	Get(ctx context.Context, accidentID string) (*domain.CaseRecord, error)
	List(ctx context.Context, filter domain.ListCasesRequest) ([]*domain.CaseRecord, int, error)
	// Update writes rec only while the stored status still equals expected,
	// otherwise it fails with e.ErrConflict.
	Update(ctx context.Context, rec *domain.CaseRecord, expected domain.CaseStatus) error
	// ListExpired returns ids of terminal cases created before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]string, error)
	Delete(ctx context.Context, accidentID string, expected domain.CaseStatus) error
	Ping(ctx context.Context) error
}

// StatsRepository counts cases created at or after since.
type StatsRepository interface {
	CountByStatus(ctx context.Context, since time.Time) (map[domain.CaseStatus]int64, error)
	CountUniqueVictims(ctx context.Context, since time.Time) (int64, error)
}

// Outbox accepts case events for asynchronous fan-out.
type Outbox interface {
	Enqueue(ctx context.Context, ev domain.CaseEvent) error
}

type Revalidator interface {
	Validate(m domain.CrashMetrics) domain.ValidationResult
}

// Authorizer returns e.ErrForbidden when the principal may not perform the action.
type Authorizer interface {
	Authorize(ctx context.Context, req domain.AccessRequest) error
}

type Recorder interface {
	CaseCreated()
	CaseRejected(stage int)
	Transition(from, to domain.CaseStatus)
	OutboxFailed()
	Swept(n int)
}

type nopRecorder struct{}

func (nopRecorder) CaseCreated() {}
func (nopRecorder) CaseRejected(int) {}
func (nopRecorder) Transition(_, _ domain.CaseStatus) {}
func (nopRecorder) OutboxFailed() {}
func (nopRecorder) Swept(int) {}

type allowAll struct{}

func (allowAll) Authorize(context.Context, domain.AccessRequest) error { return nil }
