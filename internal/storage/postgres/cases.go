package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

const caseColumns = `accident_id, victim_user_id, responder_id, location, metrics, medical_profile,
	status, created_at, updated_at, resolved_at, version`

type Cases struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewCases(pool *pgxpool.Pool, logger *slog.Logger) *Cases {
	return &Cases{pool: pool, logger: logger}
}

func (p *Cases) Insert(ctx context.Context, rec *domain.CaseRecord) error {
	const op = "postgres.Cases.Insert"

	loc, metrics, profile, err := marshalEvidence(rec)
	if err != nil {
		return e.Wrap(op, err)
	}

	query := `
		INSERT INTO cases (` + caseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = p.pool.Exec(ctx, query,
		rec.AccidentID,
		rec.VictimUserID,
		rec.ResponderID,
		loc,
		metrics,
		profile,
		rec.Status,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.ResolvedAt,
		rec.Version,
	)
	if err != nil {
		wrapped := e.WrapError(ctx, op, err)
		if !errors.Is(wrapped, e.ErrUniqueViolation) {
			p.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err))
		}
		return wrapped
	}
	return nil
}

func (p *Cases) Get(ctx context.Context, accidentID string) (*domain.CaseRecord, error) {
	const op = "postgres.Cases.Get"

	row := p.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE accident_id = $1`, accidentID)
	rec, err := scanCase(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			p.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		}
		return nil, e.WrapError(ctx, op, err)
	}
	return rec, nil
}

func (p *Cases) List(ctx context.Context, filter domain.ListCasesRequest) ([]*domain.CaseRecord, int, error) {
	const op = "postgres.Cases.List"

	var status *string
	if filter.Status != "" {
		s := string(filter.Status)
		status = &s
	}

	var total int
	if err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cases WHERE ($1::text IS NULL OR status = $1)`, status,
	).Scan(&total); err != nil {
		p.logger.Error("db count failed", slog.String("op", op), slog.Any("error", err))
		return nil, 0, e.WrapError(ctx, op, err)
	}

	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+caseColumns+`
		FROM cases
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, accident_id
		LIMIT $2 OFFSET $3
	`, status, limit, filter.Offset)
	if err != nil {
		p.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		return nil, 0, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	cases := make([]*domain.CaseRecord, 0)
	for rows.Next() {
		rec, err := scanCase(rows)
		if err != nil {
			p.logger.Error("row scan failed", slog.String("op", op), slog.Any("error", err))
			return nil, 0, e.WrapError(ctx, op, err)
		}
		cases = append(cases, rec)
	}
	if err := rows.Err(); err != nil {
		p.logger.Error("rows err", slog.String("op", op), slog.Any("error", err))
		return nil, 0, e.WrapError(ctx, op, err)
	}
	return cases, total, nil
}

// Update locks the row, checks the expected status and writes the mutable
// columns in one transaction.
func (p *Cases) Update(ctx context.Context, rec *domain.CaseRecord, expected domain.CaseStatus) (err error) {
	const op = "postgres.Cases.Update"

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return e.WrapError(ctx, op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = e.WrapError(ctx, op, tx.Commit(ctx))
		}
	}()

	var current domain.CaseStatus
	if err = tx.QueryRow(ctx,
		`SELECT status FROM cases WHERE accident_id = $1 FOR UPDATE`, rec.AccidentID,
	).Scan(&current); err != nil {
		return e.WrapError(ctx, op, err)
	}
	if current != expected {
		return fmt.Errorf("%s: status is %s not %s: %w", op, current, expected, e.ErrConflict)
	}

	if _, err = tx.Exec(ctx, `
		UPDATE cases
		SET status = $2, responder_id = $3, updated_at = $4, resolved_at = $5, version = $6
		WHERE accident_id = $1
	`, rec.AccidentID, rec.Status, rec.ResponderID, rec.UpdatedAt, rec.ResolvedAt, rec.Version); err != nil {
		p.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err))
		return e.WrapError(ctx, op, err)
	}
	return nil
}

func (p *Cases) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	const op = "postgres.Cases.ListExpired"

	rows, err := p.pool.Query(ctx, `
		SELECT accident_id FROM cases
		WHERE status IN ('RESOLVED', 'CANCELLED') AND created_at < $1
		ORDER BY accident_id
	`, cutoff)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return ids, nil
}

func (p *Cases) Delete(ctx context.Context, accidentID string, expected domain.CaseStatus) error {
	const op = "postgres.Cases.Delete"

	tag, err := p.pool.Exec(ctx,
		`DELETE FROM cases WHERE accident_id = $1 AND status = $2`, accidentID, expected)
	if err != nil {
		return e.WrapError(ctx, op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, e.ErrConflict)
	}
	return nil
}

func (p *Cases) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func marshalEvidence(rec *domain.CaseRecord) (loc, metrics, profile []byte, err error) {
	if loc, err = json.Marshal(rec.Location); err != nil {
		return nil, nil, nil, err
	}
	if metrics, err = json.Marshal(rec.Metrics); err != nil {
		return nil, nil, nil, err
	}
	if profile, err = json.Marshal(rec.MedicalProfile); err != nil {
		return nil, nil, nil, err
	}
	return loc, metrics, profile, nil
}

func scanCase(row pgx.Row) (*domain.CaseRecord, error) {
	var (
		rec                   domain.CaseRecord
		loc, metrics, profile []byte
	)
	if err := row.Scan(
		&rec.AccidentID,
		&rec.VictimUserID,
		&rec.ResponderID,
		&loc,
		&metrics,
		&profile,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ResolvedAt,
		&rec.Version,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(loc, &rec.Location); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metrics, &rec.Metrics); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(profile, &rec.MedicalProfile); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if rec.ResolvedAt != nil {
		t := rec.ResolvedAt.UTC()
		rec.ResolvedAt = &t
	}
	return &rec, nil
}
