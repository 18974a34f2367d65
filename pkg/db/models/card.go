package models

import (
	"time"

	"github.com/google/uuid"
)

// Card is a prepaid loyalty card. BalanceSealed holds the encrypted balance;
// plaintext cents never reach the database. Version backs optimistic
// concurrency on every balance mutation.
type Card struct {
	ID                  uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UID                 string     `gorm:"column:uid;not null;uniqueIndex"`
	ClientID            uuid.UUID  `gorm:"column:client_id;type:uuid;not null;index"`
	BalanceSealed       []byte     `gorm:"column:balance_sealed;not null"`
	Version             int64      `gorm:"column:version;not null;default:0"`
	Active              bool       `gorm:"column:active;not null;default:true"`
	IssuedAt            time.Time  `gorm:"column:issued_at;not null"`
	ExpiresAt           time.Time  `gorm:"column:expires_at;not null"`
	LastRechargeAt      *time.Time `gorm:"column:last_recharge_at"`
	LastRechargeCents   *int64     `gorm:"column:last_recharge_cents"`
	DeactivatedAt       *time.Time `gorm:"column:deactivated_at"`
	DeactivationReason  *string    `gorm:"column:deactivation_reason"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Transactions []CardTransaction `gorm:"foreignKey:CardID"`
}

// IsExpired reports whether the card has passed its expiry at the given time.
func (c Card) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsUsable reports whether the card can participate in debits or credits.
func (c Card) IsUsable(now time.Time) bool {
	return c.Active && !c.IsExpired(now)
}
