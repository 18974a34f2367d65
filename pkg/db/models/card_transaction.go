package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/maquis-app/maquis-backend/pkg/enums"
)

// CardTransaction is one ledger entry in a card's history. AmountCents is
// always positive; Type carries the direction.
type CardTransaction struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CardID      uuid.UUID                 `gorm:"column:card_id;type:uuid;not null;index"`
	Type        enums.CardTransactionType `gorm:"column:type;not null"`
	AmountCents int64                     `gorm:"column:amount_cents;not null"`
	OrderID     *uuid.UUID                `gorm:"column:order_id;type:uuid"`
	ActorUserID *uuid.UUID                `gorm:"column:actor_user_id;type:uuid"`
	Note        *string                   `gorm:"column:note"`
	CreatedAt   time.Time                 `gorm:"column:created_at;autoCreateTime;index"`
}
