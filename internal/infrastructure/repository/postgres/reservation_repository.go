package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

type ReservationRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db, now: time.Now}
}

func (r *ReservationRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS reservations (
	id TEXT PRIMARY KEY,
	program TEXT NOT NULL,
	visit_date TEXT NOT NULL,
	visit_hours TEXT NOT NULL,
	visitors INTEGER NOT NULL,
	applicant_email TEXT NOT NULL,
	status TEXT NOT NULL,
	is_success BOOLEAN,
	thread_ts TEXT,
	channel_id TEXT,
	docent_name TEXT,
	docent_email TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status);
CREATE INDEX IF NOT EXISTS idx_reservations_created_at ON reservations(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	app := res.Application
	_, err := r.db.ExecContext(ctx, `
INSERT INTO reservations (
	id, program, visit_date, visit_hours, visitors, applicant_email, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		res.ID, app.Program, app.VisitDate, app.VisitHours, app.Visitors, app.ApplicantEmail,
		string(res.Status), res.ErrorMessage, res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, program, visit_date, visit_hours, visitors, applicant_email, status,
	is_success, thread_ts, channel_id, docent_name, docent_email, error_message, created_at, updated_at
FROM reservations
WHERE id = $1
`, id)

	var (
		res         domain.Reservation
		status      string
		isSuccess   sql.NullBool
		threadTS    sql.NullString
		channelID   sql.NullString
		docentName  sql.NullString
		docentEmail sql.NullString
	)
	err := row.Scan(
		&res.ID, &res.Application.Program, &res.Application.VisitDate, &res.Application.VisitHours,
		&res.Application.Visitors, &res.Application.ApplicantEmail, &status,
		&isSuccess, &threadTS, &channelID, &docentName, &docentEmail,
		&res.ErrorMessage, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrReservationNotFound, "get reservation", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan reservation: %w", err)
	}

	res.Status = domain.ReservationStatus(status)
	if isSuccess.Valid {
		res.Report = &domain.ReservationReport{
			IsSuccess:   isSuccess.Bool,
			ThreadTS:    threadTS.String,
			ChannelID:   channelID.String,
			DocentName:  docentName.String,
			DocentEmail: docentEmail.String,
		}
	}
	return &res, nil
}

func (r *ReservationRepository) UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE reservations
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	return ensureAffected(result, "update reservation status", id)
}

func (r *ReservationRepository) SaveReport(ctx context.Context, id string, status domain.ReservationStatus, report domain.ReservationReport) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE reservations
SET status = $2, is_success = $3, thread_ts = $4, channel_id = $5, docent_name = $6, docent_email = $7, updated_at = $8
WHERE id = $1
`, id, string(status), report.IsSuccess, report.ThreadTS, report.ChannelID, report.DocentName, report.DocentEmail, r.now().UTC())
	if err != nil {
		return fmt.Errorf("save reservation report: %w", err)
	}
	return ensureAffected(result, "save reservation report", id)
}

func ensureAffected(result sql.Result, op, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrReservationNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}
