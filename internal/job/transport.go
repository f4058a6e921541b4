package job

import (
	"time"

	"github.com/ahmethakanbesel/market-ingest/internal/apperror"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	RecentRunsLimit  = 5
)

type GetRunRequest struct {
	ID int64
}

func (r GetRunRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid run id")
	}
	return nil
}

type ListRunsRequest struct {
	Source string
	Limit  int
}

func (r ListRunsRequest) Validate() *apperror.AppError {
	if r.Limit < 0 || r.Limit > MaxListLimit {
		return apperror.New(apperror.BadRequest, "limit must be between 1 and 500")
	}
	return nil
}

type Summary struct {
	TotalRuns         int64      `json:"total_runs"`
	SuccessRate       string     `json:"success_rate"`
	LastSuccessfulRun *time.Time `json:"last_successful_run"`
	// InProgressRuns counts STARTED runs this process is working on now.
	InProgressRuns int64 `json:"in_progress_runs"`
	// InterruptedRuns counts the remaining STARTED runs, left behind by a
	// crash or a failed terminal write.
	InterruptedRuns int64 `json:"interrupted_runs"`
}

type RecentRun struct {
	ID               int64     `json:"id"`
	Source           string    `json:"source"`
	Status           Status    `json:"status"`
	RecordsProcessed *int64    `json:"records_processed"`
	DurationMS       *int64    `json:"duration_ms"`
	StartedAt        time.Time `json:"started_at"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

type StatsResponse struct {
	Summary    Summary     `json:"summary"`
	RecentRuns []RecentRun `json:"recent_runs"`
}
