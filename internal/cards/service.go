package cards

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maquis-app/maquis-backend/pkg/db/models"
	"github.com/maquis-app/maquis-backend/pkg/enums"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
	"github.com/maquis-app/maquis-backend/pkg/money"
	"github.com/maquis-app/maquis-backend/pkg/outbox"
	"github.com/maquis-app/maquis-backend/pkg/outbox/payloads"
	"github.com/maquis-app/maquis-backend/pkg/security"
)

var uidPattern = regexp.MustCompile(`^[0-9A-F]{8,16}$`)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RegisterInput creates a new card bound to a client.
type RegisterInput struct {
	UID          string
	ClientID     uuid.UUID
	InitialCents int64
	ActorUserID  uuid.UUID
	ActorRole    enums.ActorRole
}

// MutationInput moves value on a card. AmountCents is always positive; the
// operation decides direction.
type MutationInput struct {
	UID         string
	AmountCents int64
	OrderID     *uuid.UUID
	ActorUserID uuid.UUID
	Note        *string
}

// MutationResult reports the balance around a debit or credit.
type MutationResult struct {
	CardID             uuid.UUID
	UID                string
	BalanceBeforeCents int64
	BalanceAfterCents  int64
}

// BalanceView is the client-facing balance read.
type BalanceView struct {
	UID          string    `json:"uid"`
	BalanceCents int64     `json:"balance_cents"`
	Display      string    `json:"display"`
	Active       bool      `json:"active"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// VerifyResult is the reader-boundary check before accepting a card.
type VerifyResult struct {
	Valid        bool      `json:"valid"`
	Reason       string    `json:"reason,omitempty"`
	ClientID     uuid.UUID `json:"client_id,omitempty"`
	BalanceCents int64     `json:"balance_cents"`
}

// Service owns the card entity. Debit and Credit are the only balance
// mutation paths; both append a history row in the same transaction as the
// balance write. Callers running Debit or Credit inside their own
// transaction acquire Lock first and release it after that transaction
// commits, so a waiting mutation always reads the committed balance.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.Card, error)
	GetBalance(ctx context.Context, uid string) (*BalanceView, error)
	Verify(ctx context.Context, uid string) (*VerifyResult, error)
	Recharge(ctx context.Context, input MutationInput, actorRole enums.ActorRole) (*MutationResult, error)
	Lock(uid string) func()
	Debit(ctx context.Context, tx *gorm.DB, input MutationInput) (*MutationResult, error)
	Credit(ctx context.Context, tx *gorm.DB, input MutationInput) (*MutationResult, error)
	Deactivate(ctx context.Context, uid, reason string, actorRole enums.ActorRole) error
	History(ctx context.Context, uid string, limit int) ([]models.CardTransaction, error)
}

type service struct {
	repo          Repository
	cipher        *security.BalanceCipher
	tx            txRunner
	outbox        outboxPublisher
	locks         *cardLocks
	defaultExpiry time.Duration
	nowFunc       func() time.Time
}

// NewService wires the card service.
func NewService(repo Repository, cipher *security.BalanceCipher, tx txRunner, outboxSvc outboxPublisher, defaultExpiry time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cards repository required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("balance cipher required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if defaultExpiry <= 0 {
		defaultExpiry = 365 * 24 * time.Hour
	}
	return &service{
		repo:          repo,
		cipher:        cipher,
		tx:            tx,
		outbox:        outboxSvc,
		locks:         newCardLocks(),
		defaultExpiry: defaultExpiry,
		nowFunc:       time.Now,
	}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*models.Card, error) {
	if !uidPattern.MatchString(input.UID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card uid must be 8-16 uppercase hex characters")
	}
	if input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if input.InitialCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial balance cannot be negative")
	}
	if !input.ActorRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can register cards")
	}

	sealed, err := s.cipher.Seal(input.InitialCents, input.UID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal initial balance")
	}

	now := s.nowFunc()
	card := &models.Card{
		UID:           input.UID,
		ClientID:      input.ClientID,
		BalanceSealed: sealed,
		Active:        true,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.defaultExpiry),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.Create(ctx, card)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "persist card")
		}
		card = created

		if input.InitialCents == 0 {
			return nil
		}
		return repo.AppendTransaction(ctx, &models.CardTransaction{
			CardID:      card.ID,
			Type:        enums.CardTransactionRecharge,
			AmountCents: input.InitialCents,
			ActorUserID: &input.ActorUserID,
		})
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

func (s *service) GetBalance(ctx context.Context, uid string) (*BalanceView, error) {
	card, err := s.loadCard(ctx, uid)
	if err != nil {
		return nil, err
	}
	balance, err := s.openBalance(card)
	if err != nil {
		return nil, err
	}
	amount := money.MustFromCents(balance)
	return &BalanceView{
		UID:          card.UID,
		BalanceCents: balance,
		Display:      amount.Display(),
		Active:       card.Active,
		ExpiresAt:    card.ExpiresAt,
	}, nil
}

func (s *service) Verify(ctx context.Context, uid string) (*VerifyResult, error) {
	if !uidPattern.MatchString(uid) {
		return &VerifyResult{Valid: false, Reason: "malformed uid"}, nil
	}
	card, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &VerifyResult{Valid: false, Reason: "unknown card"}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load card")
	}
	now := s.nowFunc()
	if !card.Active {
		return &VerifyResult{Valid: false, Reason: "card deactivated", ClientID: card.ClientID}, nil
	}
	if card.IsExpired(now) {
		return &VerifyResult{Valid: false, Reason: "card expired", ClientID: card.ClientID}, nil
	}
	balance, err := s.openBalance(card)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Valid: true, ClientID: card.ClientID, BalanceCents: balance}, nil
}

func (s *service) Recharge(ctx context.Context, input MutationInput, actorRole enums.ActorRole) (*MutationResult, error) {
	if actorRole != enums.RoleCashier && actorRole != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only cashiers can recharge cards")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recharge amount must be positive")
	}

	unlock := s.locks.lock(input.UID)
	defer unlock()

	var result *MutationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.mutate(ctx, tx, input, enums.CardTransactionRecharge)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCardCredited,
			AggregateType: enums.AggregateCard,
			AggregateID:   result.CardID,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: actorRole.String()},
			Data: payloads.CardCreditedEvent{
				CardID:            result.CardID,
				CardUID:           result.UID,
				Type:              enums.CardTransactionRecharge,
				AmountCents:       input.AmountCents,
				BalanceAfterCents: result.BalanceAfterCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Lock serializes mutations on one card within this process. The returned
// func releases it.
func (s *service) Lock(uid string) func() {
	return s.locks.lock(uid)
}

// Debit withdraws value inside the caller's transaction. The caller holds
// the card lock until that transaction commits.
func (s *service) Debit(ctx context.Context, tx *gorm.DB, input MutationInput) (*MutationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for card debit")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	result, err := s.mutate(ctx, tx, input, enums.CardTransactionPurchase)
	if err != nil {
		return nil, err
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCardDebited,
		AggregateType: enums.AggregateCard,
		AggregateID:   result.CardID,
		Actor:         &outbox.ActorRef{UserID: input.ActorUserID},
		Data: payloads.CardDebitedEvent{
			CardID:            result.CardID,
			CardUID:           result.UID,
			AmountCents:       input.AmountCents,
			BalanceAfterCents: result.BalanceAfterCents,
			OrderID:           input.OrderID,
		},
		Version: 1,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Credit returns value inside the caller's transaction (refunds).
func (s *service) Credit(ctx context.Context, tx *gorm.DB, input MutationInput) (*MutationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for card credit")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	result, err := s.mutate(ctx, tx, input, enums.CardTransactionRefund)
	if err != nil {
		return nil, err
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCardCredited,
		AggregateType: enums.AggregateCard,
		AggregateID:   result.CardID,
		Actor:         &outbox.ActorRef{UserID: input.ActorUserID},
		Data: payloads.CardCreditedEvent{
			CardID:            result.CardID,
			CardUID:           result.UID,
			Type:              enums.CardTransactionRefund,
			AmountCents:       input.AmountCents,
			BalanceAfterCents: result.BalanceAfterCents,
		},
		Version: 1,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Deactivate(ctx context.Context, uid, reason string, actorRole enums.ActorRole) error {
	if actorRole != enums.RoleAdmin && actorRole != enums.RoleCashier {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only cashiers can deactivate cards")
	}
	card, err := s.loadCard(ctx, uid)
	if err != nil {
		return err
	}
	if !card.Active {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "card already deactivated")
	}
	if err := s.repo.Deactivate(ctx, card.ID, reason, s.nowFunc()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate card")
	}
	return nil
}

func (s *service) History(ctx context.Context, uid string, limit int) ([]models.CardTransaction, error) {
	card, err := s.loadCard(ctx, uid)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListTransactions(ctx, card.ID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list card transactions")
	}
	return rows, nil
}

// mutate performs the read-decrypt-check-write cycle. The caller holds the
// card lock across the enclosing transaction; the version CAS below catches
// anything that slipped past it. The plaintext balance only exists inside
// this critical section.
func (s *service) mutate(ctx context.Context, tx *gorm.DB, input MutationInput, txType enums.CardTransactionType) (*MutationResult, error) {
	repo := s.repo.WithTx(tx)
	card, err := s.loadCardWith(ctx, repo, input.UID)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc()
	if !card.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "card is deactivated")
	}
	if card.IsExpired(now) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "card has expired")
	}

	before, err := s.openBalance(card)
	if err != nil {
		return nil, err
	}

	current := money.MustFromCents(before)
	delta := money.MustFromCents(input.AmountCents)

	var next money.Amount
	if txType == enums.CardTransactionPurchase {
		next, err = current.Sub(delta)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "card balance is insufficient")
		}
	} else {
		next, err = current.Add(delta)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "balance ceiling")
		}
	}

	sealed, err := s.cipher.Seal(next.Cents(), card.UID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal balance")
	}

	extra := map[string]any{}
	if txType == enums.CardTransactionRecharge {
		extra["last_recharge_at"] = now
		extra["last_recharge_cents"] = input.AmountCents
	}

	swapped, err := repo.UpdateBalanceCAS(ctx, card.ID, sealed, card.Version, extra)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write balance")
	}
	if !swapped {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "card was modified concurrently")
	}

	entry := &models.CardTransaction{
		CardID:      card.ID,
		Type:        txType,
		AmountCents: input.AmountCents,
		OrderID:     input.OrderID,
		Note:        input.Note,
	}
	if input.ActorUserID != uuid.Nil {
		entry.ActorUserID = &input.ActorUserID
	}
	if err := repo.AppendTransaction(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append card transaction")
	}

	return &MutationResult{
		CardID:             card.ID,
		UID:                card.UID,
		BalanceBeforeCents: before,
		BalanceAfterCents:  next.Cents(),
	}, nil
}

func (s *service) loadCard(ctx context.Context, uid string) (*models.Card, error) {
	return s.loadCardWith(ctx, s.repo, uid)
}

func (s *service) loadCardWith(ctx context.Context, repo Repository, uid string) (*models.Card, error) {
	if !uidPattern.MatchString(uid) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card uid must be 8-16 uppercase hex characters")
	}
	card, err := repo.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load card")
	}
	return card, nil
}

func (s *service) openBalance(card *models.Card) (int64, error) {
	balance, err := s.cipher.Open(card.BalanceSealed, card.UID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrypt card balance")
	}
	return balance, nil
}
