package stats

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
)

const (
	defaultWindowDays = 7
	maxWindowDays     = 365
	defaultTopItems   = 10
	maxTopItems       = 100
)

// Service exposes the reporting reads. Everything here is an aggregation over
// settled data; nothing mutates.
type Service interface {
	DailySummary(ctx context.Context, days int) ([]DaySummary, error)
	TopItems(ctx context.Context, limit, days int) ([]ItemSales, error)
	RevenueByMethod(ctx context.Context, day string) ([]MethodRevenue, error)
}

type service struct {
	repo    Repository
	nowFunc func() time.Time
}

// NewService wires the stats service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stats repository required")
	}
	return &service{repo: repo, nowFunc: time.Now}, nil
}

func (s *service) DailySummary(ctx context.Context, days int) ([]DaySummary, error) {
	days, err := clampWindow(days)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.DailySummary(ctx, s.windowStart(days))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "daily summary query")
	}
	return rows, nil
}

func (s *service) TopItems(ctx context.Context, limit, days int) ([]ItemSales, error) {
	days, err := clampWindow(days)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopItems
	}
	if limit > maxTopItems {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("limit cannot exceed %d", maxTopItems))
	}
	rows, err := s.repo.TopItems(ctx, s.windowStart(days), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "top items query")
	}
	return rows, nil
}

func (s *service) RevenueByMethod(ctx context.Context, day string) ([]MethodRevenue, error) {
	if day == "" {
		day = s.nowFunc().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "day must be formatted YYYY-MM-DD")
	}
	rows, err := s.repo.RevenueByMethod(ctx, day)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revenue by method query")
	}
	return rows, nil
}

func (s *service) windowStart(days int) time.Time {
	return s.nowFunc().AddDate(0, 0, -days)
}

func clampWindow(days int) (int, error) {
	if days <= 0 {
		return defaultWindowDays, nil
	}
	if days > maxWindowDays {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("window cannot exceed %d days", maxWindowDays))
	}
	return days, nil
}
