package service

import (
	"context"
	"time"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

type StatsService struct {
	repo  StatsRepository
	authz Authorizer
	now   func() time.Time
}

// NewStatsService builds the operator statistics reader. A nil authz allows every principal.
func NewStatsService(repo StatsRepository, authz Authorizer) *StatsService {
	if authz == nil {
		authz = allowAll{}
	}
	return &StatsService{repo: repo, authz: authz, now: time.Now}
}

func (s *StatsService) GetStats(ctx context.Context, p domain.Principal, req domain.StatsRequest) (*domain.CaseStats, error) {
	const op = "service.Stats.GetStats"

	if err := s.authz.Authorize(ctx, domain.AccessRequest{Action: domain.ActionStats, Principal: p}); err != nil {
		return nil, e.Wrap(op, err)
	}

	minutes := req.Minutes
	if minutes == 0 {
		minutes = domain.DefaultStatsMinutes
	}
	if minutes < 0 || minutes > domain.MaxStatsMinutes {
		return nil, e.Wrap(op, e.ErrInvalidInput)
	}
	since := s.now().Add(-time.Duration(minutes) * time.Minute)

	byStatus, err := s.repo.CountByStatus(ctx, since)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	unique, err := s.repo.CountUniqueVictims(ctx, since)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	stats := &domain.CaseStats{
		Minutes:       minutes,
		UniqueVictims: unique,
		ByStatus:      make(map[domain.CaseStatus]int64, len(domain.AllStatuses)),
	}
	for _, st := range domain.AllStatuses {
		n := byStatus[st]
		stats.ByStatus[st] = n
		stats.Total += n
	}
	return stats, nil
}
