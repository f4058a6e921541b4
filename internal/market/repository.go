package market

import "context"

type Repository interface {
	// SaveRecords upserts all records in one transaction and returns the
	// number written. On error nothing is written.
	SaveRecords(ctx context.Context, records []Record) (int64, error)
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	// ListRecords returns records newest first, optionally filtered by symbol.
	ListRecords(ctx context.Context, symbol string, offset, limit int) ([]Record, error)
	CountSnapshots(ctx context.Context, source string) (int64, error)
}
