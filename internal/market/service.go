package market

import (
	"context"
	"fmt"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListRecords returns one page of records, newest first. The symbol filter is
// case-insensitive.
func (s *Service) ListRecords(ctx context.Context, req ListRecordsRequest) (*ListRecordsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	symbol := strings.ToUpper(req.Symbol)
	records, err := s.repo.ListRecords(ctx, symbol, (req.Page-1)*req.Limit, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if records == nil {
		records = []Record{}
	}

	return &ListRecordsResponse{
		Records:    records,
		Pagination: Pagination{Page: req.Page, Limit: req.Limit},
	}, nil
}
