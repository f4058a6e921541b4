package market

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/ahmethakanbesel/market-ingest/internal/market"
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

// SaveRecords queues one insert per record and sends them as a single batch
// inside a transaction. batch_seq keeps repeated symbols of one batch apart;
// replaying the same batch updates in place.
func (r *PostgresRepository) SaveRecords(ctx context.Context, records []domain.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("save records: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `INSERT INTO market_records
			(symbol, name, price_usd, market_cap_usd, volume_24h, source, ingested_at, batch_seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source, ingested_at, batch_seq) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			price_usd = EXCLUDED.price_usd,
			market_cap_usd = EXCLUDED.market_cap_usd,
			volume_24h = EXCLUDED.volume_24h`

	batch := &pgx.Batch{}
	for i, rec := range records {
		batch.Queue(query,
			rec.Symbol, rec.Name, rec.PriceUSD, rec.MarketCapUSD, rec.Volume24h,
			rec.Source, rec.IngestedAt.UTC(), i,
		)
	}

	results := tx.SendBatch(ctx, batch)
	var total int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			if postgres.IsCheckViolation(err) {
				return 0, fmt.Errorf("save records: invalid record: %w", err)
			}
			return 0, fmt.Errorf("save records: %w", err)
		}
		total += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("save records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("save records: commit: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) SaveSnapshot(ctx context.Context, s *domain.Snapshot) error {
	const query = `INSERT INTO raw_snapshots (source, payload, captured_at) VALUES ($1, $2, $3) RETURNING id`

	if err := r.pool.QueryRow(ctx, query, s.Source, string(s.Payload), s.CapturedAt.UTC()).Scan(&s.ID); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountSnapshots(ctx context.Context, source string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM raw_snapshots WHERE $1::text = '' OR source = $1`, source,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListRecords(ctx context.Context, symbol string, offset, limit int) ([]domain.Record, error) {
	const query = `SELECT id, symbol, name, price_usd, market_cap_usd, volume_24h, source, ingested_at
		FROM market_records
		WHERE ($1::text = '' OR symbol = $1)
		ORDER BY ingested_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, symbol, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Record, error) {
		var rec domain.Record
		err := row.Scan(&rec.ID, &rec.Symbol, &rec.Name, &rec.PriceUSD,
			&rec.MarketCapUSD, &rec.Volume24h, &rec.Source, &rec.IngestedAt)
		rec.IngestedAt = rec.IngestedAt.UTC()
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}
