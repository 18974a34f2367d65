package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is a line on an order. Name and unit price are copied from the
// menu item at creation so the line survives catalog edits unchanged.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	MenuItemID     uuid.UUID `gorm:"column:menu_item_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	Instructions   *string   `gorm:"column:instructions"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// LineTotalCents is quantity times the frozen unit price.
func (i OrderItem) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}
