package job

import (
	"errors"
	"time"
)

type Status string

const (
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ErrNotStarted is returned when a terminal update targets a run that is
// unknown or already finished.
var ErrNotStarted = errors.New("run is not in STARTED state")

// Run records one source's processing within one pipeline execution.
type Run struct {
	ID               int64      `json:"id"`
	Source           string     `json:"source"`
	Status           Status     `json:"status"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	RecordsProcessed *int64     `json:"records_processed,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// Duration is the elapsed time of a finished run. ok is false while the run
// has no end time.
func (r *Run) Duration() (d time.Duration, ok bool) {
	if r.EndTime == nil {
		return 0, false
	}
	return r.EndTime.Sub(r.StartTime), true
}
