package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maquis-app/maquis-backend/pkg/db/models"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
)

// Item is the catalog view order creation consumes.
type Item struct {
	ID          uuid.UUID
	Name        string
	PriceCents  int64
	Available   bool
	PrepMinutes int
}

// Lookup resolves menu items for order validation.
type Lookup interface {
	Lookup(ctx context.Context, itemID uuid.UUID) (*Item, error)
	LookupMany(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]Item, error)
}

// Service exposes catalog reads.
type Service interface {
	Lookup
	ListAvailable(ctx context.Context) ([]Item, error)
}

type service struct {
	repo Repository
}

// NewService wires a catalog service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Lookup(ctx context.Context, itemID uuid.UUID) (*Item, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item id required")
	}
	row, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu item")
	}
	item := toItem(*row)
	return &item, nil
}

func (s *service) LookupMany(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]Item, error) {
	rows, err := s.repo.FindByIDs(ctx, itemIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu items")
	}
	out := make(map[uuid.UUID]Item, len(rows))
	for _, row := range rows {
		out[row.ID] = toItem(row)
	}
	return out, nil
}

func (s *service) ListAvailable(ctx context.Context) ([]Item, error) {
	rows, err := s.repo.ListAvailable(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list menu items")
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(row))
	}
	return items, nil
}

func toItem(row models.MenuItem) Item {
	return Item{
		ID:          row.ID,
		Name:        row.Name,
		PriceCents:  row.PriceCents,
		Available:   row.Available,
		PrepMinutes: row.PrepMinutes,
	}
}
