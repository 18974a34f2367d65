package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/maquis-app/maquis-backend/pkg/enums"
	"github.com/maquis-app/maquis-backend/pkg/types"
)

// Payment settles an order. One completed payment per order; TransactionID is
// only set on the mobile money path and is unique so gateway callbacks stay
// idempotent at the storage layer.
type Payment struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Method              enums.PaymentMethod `gorm:"column:method;not null"`
	Status              enums.PaymentStatus `gorm:"column:status;not null;default:'pending';index"`
	AmountCents         int64               `gorm:"column:amount_cents;not null"`
	ReceiptNumber       string              `gorm:"column:receipt_number;not null;uniqueIndex"`
	TransactionID       *string             `gorm:"column:transaction_id;uniqueIndex"`
	Details             *types.PaymentDetails `gorm:"column:details;type:jsonb;serializer:json"`
	CashierUserID       *uuid.UUID          `gorm:"column:cashier_user_id;type:uuid"`
	RefundedAmountCents int64               `gorm:"column:refunded_amount_cents;not null;default:0"`
	RefundReason        *string             `gorm:"column:refund_reason"`
	ConfirmedAt         *time.Time          `gorm:"column:confirmed_at"`
	ProcessedAt         time.Time           `gorm:"column:processed_at;not null"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
