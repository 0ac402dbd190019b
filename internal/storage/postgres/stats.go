package postgres

import (
	"context"
	"log/slog"
	"time"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

func (p *Cases) CountByStatus(ctx context.Context, since time.Time) (map[domain.CaseStatus]int64, error) {
	const op = "postgres.Cases.CountByStatus"

	const query = `
		SELECT status, COUNT(*)
		FROM cases
		WHERE created_at >= $1
		GROUP BY status
	`

	rows, err := p.pool.Query(ctx, query, since)
	if err != nil {
		p.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	out := make(map[domain.CaseStatus]int64)
	for rows.Next() {
		var (
			status domain.CaseStatus
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			p.logger.Error("row scan failed", slog.String("op", op), slog.Any("error", err))
			return nil, e.WrapError(ctx, op, err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		p.logger.Error("rows err", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	return out, nil
}

func (p *Cases) CountUniqueVictims(ctx context.Context, since time.Time) (int64, error) {
	const op = "postgres.Cases.CountUniqueVictims"

	const query = `
		SELECT COUNT(DISTINCT victim_user_id)
		FROM cases
		WHERE created_at >= $1
	`

	var n int64
	if err := p.pool.QueryRow(ctx, query, since).Scan(&n); err != nil {
		p.logger.Error("db queryrow scan failed",
			slog.String("op", op),
			slog.Any("error", err),
			slog.Time("since", since),
		)
		return 0, e.WrapError(ctx, op, err)
	}
	return n, nil
}
