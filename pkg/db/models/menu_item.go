package models

import (
	"time"

	"github.com/google/uuid"
)

// MenuItem is the catalog entry orders are validated against. The core only
// reads this table; menu management lives outside this service.
type MenuItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	Category    string    `gorm:"column:category;not null"`
	PriceCents  int64     `gorm:"column:price_cents;not null"`
	Available   bool      `gorm:"column:available;not null;default:true"`
	PrepMinutes int       `gorm:"column:prep_minutes;not null;default:5"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
