package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ahmethakanbesel/market-ingest/internal/apperror"
	domain "github.com/ahmethakanbesel/market-ingest/internal/job"
	"github.com/ahmethakanbesel/market-ingest/internal/platform/sqlite"
)

const runColumns = `id, source, status, start_time, end_time, records_processed, error_message`

type Repository struct {
	db *sql.DB
}

var _ domain.Repository = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, run *domain.Run) error {
	const query = `INSERT INTO job_runs (source, status, start_time) VALUES (?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, run.Source, string(run.Status), sqlite.FormatTime(run.StartTime))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	run.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create run: last insert id: %w", err)
	}
	return nil
}

func (r *Repository) Finish(ctx context.Context, run *domain.Run) error {
	const query = `UPDATE job_runs
		SET status = ?, end_time = ?, records_processed = ?, error_message = ?
		WHERE id = ? AND status = 'STARTED'`

	var end sql.NullString
	if run.EndTime != nil {
		end = sql.NullString{String: sqlite.FormatTime(*run.EndTime), Valid: true}
	}
	var records sql.NullInt64
	if run.RecordsProcessed != nil {
		records = sql.NullInt64{Int64: *run.RecordsProcessed, Valid: true}
	}
	var msg sql.NullString
	if run.ErrorMessage != "" {
		msg = sql.NullString{String: run.ErrorMessage, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query, string(run.Status), end, records, msg, run.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotStarted
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM job_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.Wrap(apperror.NotFound, "run not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (r *Repository) List(ctx context.Context, source string, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM job_runs WHERE 1=1`

	var args []any
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}
	query += " ORDER BY start_time DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *Repository) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM job_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *Repository) LastByStatus(ctx context.Context, status domain.Status) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM job_runs WHERE status = ? ORDER BY start_time DESC, id DESC LIMIT 1`,
		string(status),
	)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run by status: %w", err)
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.Run, error) {
	var (
		run     domain.Run
		status  string
		start   string
		end     sql.NullString
		records sql.NullInt64
		msg     sql.NullString
	)
	if err := s.Scan(&run.ID, &run.Source, &status, &start, &end, &records, &msg); err != nil {
		return nil, err
	}

	run.Status = domain.Status(status)
	t, err := sqlite.ParseTime(start)
	if err != nil {
		return nil, err
	}
	run.StartTime = t
	if end.Valid {
		t, err := sqlite.ParseTime(end.String)
		if err != nil {
			return nil, err
		}
		run.EndTime = &t
	}
	if records.Valid {
		n := records.Int64
		run.RecordsProcessed = &n
	}
	run.ErrorMessage = msg.String
	return &run, nil
}
