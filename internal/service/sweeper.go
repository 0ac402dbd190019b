package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trafficSOS/pkg/e"
)

// Sweep deletes terminal cases created before now minus the retention window.
// Every candidate is re-read under its record lock before removal.
func (m *LifecycleManager) Sweep(ctx context.Context, now time.Time) (int, error) {
	const op = "service.Sweep"

	cutoff := now.Add(-m.cfg.Retention)
	ids, err := m.store.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, e.Wrap(op, err)
	}

	removed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return removed, e.WrapError(ctx, op, ctx.Err())
		}
		ok, err := m.sweepOne(ctx, id, cutoff)
		if err != nil {
			m.logger.Warn("sweep skipped case", slog.String("accident_id", id), slog.Any("error", err))
			continue
		}
		if ok {
			removed++
		}
	}

	m.metrics.Swept(removed)
	return removed, nil
}

func (m *LifecycleManager) sweepOne(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !rec.Status.Terminal() || !rec.CreatedAt.Before(cutoff) {
		return false, nil
	}
	if err := m.store.Delete(ctx, id, rec.Status); err != nil {
		return false, err
	}
	return true, nil
}

// RunSweeper calls Sweep every SweepInterval until ctx is done.
func (m *LifecycleManager) RunSweeper(ctx context.Context) {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	m.logger.Info("sweeper STARTED",
		slog.Duration("interval", interval),
		slog.Duration("retention", m.cfg.Retention),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("sweeper STOPPED", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
		}

		n, err := m.Sweep(ctx, m.now())
		if err != nil {
			m.logger.Error("sweep failed", slog.Any("error", err))
			continue
		}
		if n > 0 {
			m.logger.Info("expired cases removed", slog.Int("count", n))
		}
	}
}
