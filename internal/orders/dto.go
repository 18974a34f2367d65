package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/maquis-app/maquis-backend/pkg/enums"
)

// CreateOrderItemInput is one requested line on a new order.
type CreateOrderItemInput struct {
	MenuItemID   uuid.UUID
	Quantity     int
	Instructions *string
}

// CreateOrderInput carries everything needed to place an order.
type CreateOrderInput struct {
	ClientID        uuid.UUID
	TableID         *string
	IsTakeaway      bool
	SpecialRequests *string
	Items           []CreateOrderItemInput
}

// TransitionInput identifies the order and the actor driving a status change.
type TransitionInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.ActorRole
}

// CancelInput adds the optional cancellation reason.
type CancelInput struct {
	TransitionInput
	Reason string
}

// QueueEntry is the kitchen-facing projection of an open order.
type QueueEntry struct {
	OrderID          uuid.UUID         `json:"order_id"`
	Status           enums.OrderStatus `json:"status"`
	TableID          *string           `json:"table_id,omitempty"`
	IsTakeaway       bool              `json:"is_takeaway"`
	ItemCount        int               `json:"item_count"`
	TotalCents       int64             `json:"total_cents"`
	EstimatedReadyAt *time.Time        `json:"estimated_ready_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}
