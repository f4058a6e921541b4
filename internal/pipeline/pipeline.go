// Package pipeline drives every registered source through fetch, archive,
// normalize and persist, recording one job run per source.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ahmethakanbesel/market-ingest/internal/ingest"
	"github.com/ahmethakanbesel/market-ingest/internal/job"
	"github.com/ahmethakanbesel/market-ingest/internal/market"
	"github.com/ahmethakanbesel/market-ingest/internal/observability"
)

// ErrRunInProgress is returned when Run is called while another run holds
// the pipeline.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Result describes how one source fared in a run.
type Result struct {
	Source    string        `json:"source"`
	RunID     int64         `json:"run_id"`
	Status    job.Status    `json:"status"`
	Stage     Stage         `json:"stage"`
	Fetched   int           `json:"fetched"`
	Discarded int           `json:"discarded"`
	Records   int64         `json:"records"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == job.StatusSuccess {
			n++
		}
	}
	return n
}

func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == job.StatusFailed {
			n++
		}
	}
	return n
}

type Pipeline struct {
	registry *ingest.Registry
	tracker  *job.Tracker
	store    market.Repository
	metrics  *observability.Metrics
	timeout  time.Duration
	now      func() time.Time

	sem     *semaphore.Weighted
	running atomic.Bool
}

type Option func(*Pipeline)

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRunTimeout bounds a whole run. Zero means no bound.
func WithRunTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(registry *ingest.Registry, tracker *job.Tracker, store market.Repository, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: registry,
		tracker:  tracker,
		store:    store,
		now:      time.Now,
		sem:      semaphore.NewWeighted(1),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Running reports whether a run currently holds the pipeline.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Run processes every source in registry order. A failing source does not
// stop the others; the returned error is non-nil only when the job store
// fails, which aborts the run, or when another run is in progress.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	if !p.sem.TryAcquire(1) {
		slog.Warn("pipeline run skipped, previous run still in progress")
		p.metrics.RecordPipeline(observability.OutcomeSkipped, 0)
		return Report{}, ErrRunInProgress
	}
	p.running.Store(true)
	defer func() {
		p.running.Store(false)
		p.sem.Release(1)
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	sources := p.registry.Sources()
	report := Report{StartedAt: p.now().UTC(), Results: make([]Result, 0, len(sources))}
	slog.Info("pipeline started", "sources", len(sources))

	for _, src := range sources {
		res, err := p.runSource(ctx, src)
		report.Results = append(report.Results, res)
		if err != nil {
			report.FinishedAt = p.now().UTC()
			p.metrics.RecordPipeline(observability.OutcomeAborted, 0)
			return report, fmt.Errorf("pipeline aborted at %s: %w", src.Name(), err)
		}
	}

	report.FinishedAt = p.now().UTC()
	elapsed := report.FinishedAt.Sub(report.StartedAt)
	p.metrics.RecordPipeline(observability.OutcomeCompleted, elapsed)
	slog.Info("pipeline finished", "succeeded", report.Succeeded(), "failed", report.Failed(),
		"duration", elapsed.String())
	return report, nil
}

// runSource returns an error only for tracker failures.
func (p *Pipeline) runSource(ctx context.Context, src ingest.Source) (Result, error) {
	res := Result{Source: src.Name(), Stage: StagePending}
	start := p.now()

	run, err := p.tracker.Begin(ctx, src.Name())
	if err != nil {
		res.Err = err
		return res, err
	}
	res.RunID = run.ID

	records, procErr := p.process(ctx, src, &res)
	res.Duration = p.now().Sub(start)

	if procErr != nil {
		res.Status = job.StatusFailed
		res.Err = procErr
		if err := p.tracker.Fail(ctx, run, procErr.Error()); err != nil {
			return res, err
		}
	} else {
		res.Status = job.StatusSuccess
		res.Stage = StageDone
		res.Records = records
		if err := p.tracker.Succeed(ctx, run, records); err != nil {
			return res, err
		}
	}

	p.metrics.RecordSourceRun(res.Source, string(res.Status), res.Duration, int(res.Records), res.Discarded)
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, src ingest.Source, res *Result) (int64, error) {
	res.Stage = StageFetching
	raw, err := src.FetchRaw(ctx)
	if err != nil {
		return 0, &StageError{Stage: StageFetching, Err: err}
	}
	res.Fetched = ingest.BatchLen(raw)

	res.Stage = StageArchiving
	snap := &market.Snapshot{Source: src.Name(), Payload: raw, CapturedAt: p.now().UTC()}
	if err := p.store.SaveSnapshot(ctx, snap); err != nil {
		return 0, &StageError{Stage: StageArchiving, Err: err}
	}

	res.Stage = StageNormalizing
	records, err := normalize(src, raw)
	if err != nil {
		return 0, &StageError{Stage: StageNormalizing, Err: err}
	}
	res.Discarded = max(res.Fetched-len(records), 0)

	res.Stage = StagePersisting
	n, err := p.store.SaveRecords(ctx, records)
	if err != nil {
		return 0, &StageError{Stage: StagePersisting, Err: err}
	}
	return n, nil
}

func normalize(src ingest.Source, raw json.RawMessage) (records []market.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return src.Normalize(raw), nil
}
