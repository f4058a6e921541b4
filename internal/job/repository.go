package job

import "context"

type Repository interface {
	// Create inserts r and sets its ID.
	Create(ctx context.Context, r *Run) error
	// Finish applies a terminal status to a run still in STARTED. It returns
	// ErrNotStarted if no such run exists.
	Finish(ctx context.Context, r *Run) error
	Get(ctx context.Context, id int64) (*Run, error)
	// List returns runs newest first, optionally filtered by source.
	List(ctx context.Context, source string, limit int) ([]Run, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
	// LastByStatus returns the most recently started run with the status,
	// or nil.
	LastByStatus(ctx context.Context, status Status) (*Run, error)
}
