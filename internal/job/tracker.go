package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultWriteTimeout = 5 * time.Second

// Tracker owns the lifecycle of runs. Writes are detached from the caller's
// cancellation so a cancelled pipeline still records terminal statuses.
type Tracker struct {
	repo         Repository
	now          func() time.Time
	writeTimeout time.Duration

	mu   sync.Mutex
	open map[int64]struct{}
}

type TrackerOption func(*Tracker)

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func WithWriteTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.writeTimeout = d }
}

func NewTracker(repo Repository, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		repo:         repo,
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
		open:         make(map[int64]struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Begin creates a STARTED run for source.
func (t *Tracker) Begin(ctx context.Context, source string) (*Run, error) {
	ctx, cancel := t.writeContext(ctx)
	defer cancel()

	r := &Run{
		Source:    source,
		Status:    StatusStarted,
		StartTime: t.now().UTC(),
	}
	if err := t.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("begin run for %s: %w", source, err)
	}
	t.mu.Lock()
	t.open[r.ID] = struct{}{}
	t.mu.Unlock()
	slog.Info("run started", "source", source, "run", r.ID)
	return r, nil
}

// Succeed marks r SUCCESS with the number of committed records.
func (t *Tracker) Succeed(ctx context.Context, r *Run, records int64) error {
	return t.finish(ctx, r, StatusSuccess, &records, "")
}

// Fail marks r FAILED with message.
func (t *Tracker) Fail(ctx context.Context, r *Run, message string) error {
	return t.finish(ctx, r, StatusFailed, nil, message)
}

func (t *Tracker) finish(ctx context.Context, r *Run, status Status, records *int64, message string) error {
	if r.Status.Terminal() {
		return fmt.Errorf("finish run %d: %w", r.ID, ErrNotStarted)
	}
	// A run whose terminal write fails stays STARTED in the store and is
	// no longer being worked on, so it leaves the open set either way.
	defer t.release(r.ID)

	ctx, cancel := t.writeContext(ctx)
	defer cancel()

	end := t.now().UTC()
	next := *r
	next.Status = status
	next.EndTime = &end
	next.RecordsProcessed = records
	next.ErrorMessage = message

	if err := t.repo.Finish(ctx, &next); err != nil {
		return fmt.Errorf("finish run %d: %w", r.ID, err)
	}
	*r = next

	d, _ := r.Duration()
	if status == StatusFailed {
		slog.Error("run failed", "source", r.Source, "run", r.ID, "duration", d.String(), "error", message)
	} else {
		slog.Info("run succeeded", "source", r.Source, "run", r.ID, "duration", d.String(), "records", *records)
	}
	return nil
}

// InProgress reports how many runs this tracker has begun and not yet
// finished.
func (t *Tracker) InProgress() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.open))
}

func (t *Tracker) release(id int64) {
	t.mu.Lock()
	delete(t.open, id)
	t.mu.Unlock()
}

func (t *Tracker) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), t.writeTimeout)
}
