package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/maquis-app/maquis-backend/pkg/enums"
)

// Order is the aggregate root of the order lifecycle. Monetary totals are
// frozen at creation time; later menu price changes never touch them.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID         uuid.UUID         `gorm:"column:client_id;type:uuid;not null;index"`
	TableID          *string           `gorm:"column:table_id"`
	IsTakeaway       bool              `gorm:"column:is_takeaway;not null;default:false"`
	Status           enums.OrderStatus `gorm:"column:status;not null;default:'pending';index"`
	TotalCents       int64             `gorm:"column:total_cents;not null"`
	SpecialRequests  *string           `gorm:"column:special_requests"`
	EstimatedReadyAt *time.Time        `gorm:"column:estimated_ready_at"`
	ReadyAt          *time.Time        `gorm:"column:ready_at"`
	ServedAt         *time.Time        `gorm:"column:served_at"`
	PaidAt           *time.Time        `gorm:"column:paid_at"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}
