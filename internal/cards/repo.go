package cards

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maquis-app/maquis-backend/pkg/db/models"
)

// Repository manages persistence for cards and their transaction history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, card *models.Card) (*models.Card, error)
	FindByUID(ctx context.Context, uid string) (*models.Card, error)
	// UpdateBalanceCAS rewrites the sealed balance only when the stored
	// version still matches expectedVersion, bumping the version in the same
	// statement. Returns false when another writer got there first.
	UpdateBalanceCAS(ctx context.Context, cardID uuid.UUID, sealed []byte, expectedVersion int64, extra map[string]any) (bool, error)
	AppendTransaction(ctx context.Context, entry *models.CardTransaction) error
	ListTransactions(ctx context.Context, cardID uuid.UUID, limit int) ([]models.CardTransaction, error)
	Deactivate(ctx context.Context, cardID uuid.UUID, reason string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cards repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, card *models.Card) (*models.Card, error) {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(card).Error; err != nil {
		return nil, err
	}
	return card, nil
}

func (r *repository) FindByUID(ctx context.Context, uid string) (*models.Card, error) {
	var card models.Card
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *repository) UpdateBalanceCAS(ctx context.Context, cardID uuid.UUID, sealed []byte, expectedVersion int64, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"balance_sealed": sealed,
		"version":        gorm.Expr("version + 1"),
		"updated_at":     time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ? AND version = ?", cardID, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AppendTransaction(ctx context.Context, entry *models.CardTransaction) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListTransactions(ctx context.Context, cardID uuid.UUID, limit int) ([]models.CardTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.CardTransaction
	err := r.db.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Deactivate(ctx context.Context, cardID uuid.UUID, reason string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ?", cardID).
		Updates(map[string]any{
			"active":              false,
			"deactivated_at":      at,
			"deactivation_reason": reason,
			"updated_at":          at,
		}).Error
}
