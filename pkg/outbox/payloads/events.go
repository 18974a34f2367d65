package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/maquis-app/maquis-backend/pkg/enums"
)

// OrderCreatedEvent signals that a client placed a new order.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID  `json:"order_id"`
	ClientID         uuid.UUID  `json:"client_id"`
	TableID          *string    `json:"table_id,omitempty"`
	IsTakeaway       bool       `json:"is_takeaway"`
	TotalCents       int64      `json:"total_cents"`
	ItemCount        int        `json:"item_count"`
	EstimatedReadyAt *time.Time `json:"estimated_ready_at,omitempty"`
}

// OrderCancelledEvent is emitted when a pending order is cancelled.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	ClientID    uuid.UUID `json:"client_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderPaidEvent closes the order lifecycle after settlement.
type OrderPaidEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	PaymentID     uuid.UUID           `json:"payment_id"`
	Method        enums.PaymentMethod `json:"method"`
	AmountCents   int64               `json:"amount_cents"`
	ReceiptNumber string              `json:"receipt_number"`
	PaidAt        time.Time           `json:"paid_at"`
}

// CardDebitedEvent reports a purchase taken from a prepaid card.
type CardDebitedEvent struct {
	CardID            uuid.UUID  `json:"card_id"`
	CardUID           string     `json:"card_uid"`
	AmountCents       int64      `json:"amount_cents"`
	BalanceAfterCents int64      `json:"balance_after_cents"`
	OrderID           *uuid.UUID `json:"order_id,omitempty"`
}

// CardCreditedEvent reports a recharge or refund credited to a card.
type CardCreditedEvent struct {
	CardID            uuid.UUID                 `json:"card_id"`
	CardUID           string                    `json:"card_uid"`
	Type              enums.CardTransactionType `json:"type"`
	AmountCents       int64                     `json:"amount_cents"`
	BalanceAfterCents int64                     `json:"balance_after_cents"`
}

// PaymentRefundedEvent is emitted on full or partial refunds.
type PaymentRefundedEvent struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	OrderID      uuid.UUID `json:"order_id"`
	AmountCents  int64     `json:"amount_cents"`
	Reason       string    `json:"reason,omitempty"`
	RefundedAt   time.Time `json:"refunded_at"`
	FullyRefunds bool      `json:"fully_refunds"`
}

// PaymentReconciliationEvent flags a payment that needs manual review.
type PaymentReconciliationEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Detail        string    `json:"detail"`
	FlaggedAt     time.Time `json:"flagged_at"`
}
