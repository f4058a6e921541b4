package market

import (
	"strings"

	"github.com/ahmethakanbesel/market-ingest/internal/apperror"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type ListRecordsRequest struct {
	Page   int
	Limit  int
	Symbol string
}

func (r ListRecordsRequest) Validate() *apperror.AppError {
	if r.Page < 1 {
		return apperror.New(apperror.BadRequest, "page must be a positive integer")
	}
	if r.Limit < 1 || r.Limit > MaxPageLimit {
		return apperror.New(apperror.BadRequest, "limit must be between 1 and 100")
	}
	if strings.TrimSpace(r.Symbol) != r.Symbol {
		return apperror.New(apperror.BadRequest, "symbol must not contain surrounding spaces")
	}
	return nil
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type ListRecordsResponse struct {
	RequestID  string     `json:"request_id"`
	Records    []Record   `json:"records"`
	Pagination Pagination `json:"pagination"`
}
