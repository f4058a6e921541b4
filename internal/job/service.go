package job

import (
	"context"
	"fmt"
)

type Service struct {
	repo       Repository
	inProgress func() int64
}

type ServiceOption func(*Service)

// WithInProgress supplies the number of runs currently being processed, so
// Stats can tell them apart from runs abandoned by a crash.
func WithInProgress(fn func() int64) ServiceOption {
	return func(s *Service) { s.inProgress = fn }
}

func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, req GetRunRequest) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, req.ID)
}

func (s *Service) List(ctx context.Context, req ListRunsRequest) ([]Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	runs, err := s.repo.List(ctx, req.Source, limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []Run{}
	}
	return runs, nil
}

// Stats summarizes run history: totals, success rate, the last successful
// run and the most recent runs with their durations.
func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	started := counts[StatusStarted]
	var active int64
	if s.inProgress != nil {
		active = min(s.inProgress(), started)
	}

	summary := Summary{
		TotalRuns:       total,
		SuccessRate:     successRate(counts[StatusSuccess], total),
		InProgressRuns:  active,
		InterruptedRuns: started - active,
	}

	last, err := s.repo.LastByStatus(ctx, StatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("last successful run: %w", err)
	}
	if last != nil {
		started := last.StartTime
		summary.LastSuccessfulRun = &started
	}

	runs, err := s.repo.List(ctx, "", RecentRunsLimit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}

	recent := make([]RecentRun, 0, len(runs))
	for _, r := range runs {
		rr := RecentRun{
			ID:               r.ID,
			Source:           r.Source,
			Status:           r.Status,
			RecordsProcessed: r.RecordsProcessed,
			StartedAt:        r.StartTime,
			ErrorMessage:     r.ErrorMessage,
		}
		if d, ok := r.Duration(); ok {
			ms := d.Milliseconds()
			rr.DurationMS = &ms
		}
		recent = append(recent, rr)
	}

	return &StatsResponse{Summary: summary, RecentRuns: recent}, nil
}

func successRate(success, total int64) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(success)/float64(total)*100)
}
