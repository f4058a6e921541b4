package market

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	domain "github.com/ahmethakanbesel/market-ingest/internal/market"
	"github.com/ahmethakanbesel/market-ingest/internal/platform/sqlite"
)

const batchSize = 500

type Repository struct {
	db *sql.DB
}

var _ domain.Repository = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveRecords inserts every record inside a single transaction, in multi-row
// batches. A record's position in records is stored as batch_seq, so rows of
// one batch never collide with each other even when symbols repeat; only a
// replay of the same batch hits (source, ingested_at, batch_seq) and updates
// in place.
func (r *Repository) SaveRecords(ctx context.Context, records []domain.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save records: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for i := 0; i < len(records); i += batchSize {
		batch := records[i:min(i+batchSize, len(records))]

		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*8)
		for j, rec := range batch {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?)"
			args = append(args,
				rec.Symbol, rec.Name, rec.PriceUSD, rec.MarketCapUSD, rec.Volume24h,
				rec.Source, sqlite.FormatTime(rec.IngestedAt), i+j,
			)
		}

		query := fmt.Sprintf( //nolint:gosec // placeholders are not user input
			`INSERT INTO market_records (symbol, name, price_usd, market_cap_usd, volume_24h, source, ingested_at, batch_seq)
			VALUES %s
			ON CONFLICT (source, ingested_at, batch_seq) DO UPDATE SET
				symbol = excluded.symbol,
				name = excluded.name,
				price_usd = excluded.price_usd,
				market_cap_usd = excluded.market_cap_usd,
				volume_24h = excluded.volume_24h`,
			strings.Join(placeholders, ", "),
		)

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("save records: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save records: commit: %w", err)
	}
	return total, nil
}

func (r *Repository) SaveSnapshot(ctx context.Context, s *domain.Snapshot) error {
	const query = `INSERT INTO raw_snapshots (source, payload, captured_at) VALUES (?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, s.Source, string(s.Payload), sqlite.FormatTime(s.CapturedAt))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.ID, _ = res.LastInsertId()
	return nil
}

func (r *Repository) CountSnapshots(ctx context.Context, source string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_snapshots WHERE ? = '' OR source = ?`, source, source,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

func (r *Repository) ListRecords(ctx context.Context, symbol string, offset, limit int) ([]domain.Record, error) {
	query := `SELECT id, symbol, name, price_usd, market_cap_usd, volume_24h, source, ingested_at
		FROM market_records WHERE 1=1`

	var args []any
	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY ingested_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		var ingested string
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Name, &rec.PriceUSD,
			&rec.MarketCapUSD, &rec.Volume24h, &rec.Source, &ingested); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if rec.IngestedAt, err = sqlite.ParseTime(ingested); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
