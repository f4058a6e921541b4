package job

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ahmethakanbesel/market-ingest/internal/apperror"
	domain "github.com/ahmethakanbesel/market-ingest/internal/job"
	"github.com/ahmethakanbesel/market-ingest/internal/platform/postgres"
)

// PostgresRepository implements domain.Repository on a pgx pool.
type PostgresRepository struct {
	pool *postgres.Pool
}

var _ domain.Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(pool *postgres.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, run *domain.Run) error {
	const query = `INSERT INTO job_runs (source, status, start_time) VALUES ($1, $2, $3) RETURNING id`

	if err := r.pool.QueryRow(ctx, query, run.Source, string(run.Status), run.StartTime).Scan(&run.ID); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Finish(ctx context.Context, run *domain.Run) error {
	const query = `UPDATE job_runs
		SET status = $1, end_time = $2, records_processed = $3, error_message = NULLIF($4::text, '')
		WHERE id = $5 AND status = 'STARTED'`

	tag, err := r.pool.Exec(ctx, query,
		string(run.Status), run.EndTime, run.RecordsProcessed, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotStarted
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*domain.Run, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM job_runs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	run, err := pgx.CollectExactlyOneRow(rows, collectRun)
	if postgres.IsNotFound(err) {
		return nil, apperror.Wrap(apperror.NotFound, "run not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

func (r *PostgresRepository) List(ctx context.Context, source string, limit int) ([]domain.Run, error) {
	const query = `SELECT ` + runColumns + ` FROM job_runs
		WHERE ($1::text = '' OR source = $1)
		ORDER BY start_time DESC, id DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, source, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, collectRun)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (r *PostgresRepository) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM job_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer rows.Close()

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

func (r *PostgresRepository) LastByStatus(ctx context.Context, status domain.Status) (*domain.Run, error) {
	const query = `SELECT ` + runColumns + ` FROM job_runs
		WHERE status = $1
		ORDER BY start_time DESC, id DESC
		LIMIT 1`

	rows, err := r.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("last run by status: %w", err)
	}

	run, err := pgx.CollectExactlyOneRow(rows, collectRun)
	if postgres.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run by status: %w", err)
	}
	return &run, nil
}

func collectRun(row pgx.CollectableRow) (domain.Run, error) {
	var (
		run    domain.Run
		status string
		end    *time.Time
		msg    *string
	)
	if err := row.Scan(&run.ID, &run.Source, &status, &run.StartTime, &end, &run.RecordsProcessed, &msg); err != nil {
		return domain.Run{}, err
	}

	run.Status = domain.Status(status)
	run.StartTime = run.StartTime.UTC()
	if end != nil {
		t := end.UTC()
		run.EndTime = &t
	}
	if msg != nil {
		run.ErrorMessage = *msg
	}
	return run, nil
}
