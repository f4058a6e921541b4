package pipeline

import "strings"

// Stage is a step of processing one source.
type Stage string

const (
	StagePending     Stage = "PENDING"
	StageFetching    Stage = "FETCHING"
	StageArchiving   Stage = "ARCHIVING"
	StageNormalizing Stage = "NORMALIZING"
	StagePersisting  Stage = "PERSISTING"
	StageDone        Stage = "DONE"
)

// StageError is a source failure tagged with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return strings.ToLower(string(e.Stage)) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }
