package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/maquis-app/maquis-backend/internal/cards"
	"github.com/maquis-app/maquis-backend/internal/orders"
	"github.com/maquis-app/maquis-backend/pkg/db/models"
	"github.com/maquis-app/maquis-backend/pkg/enums"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
	"github.com/maquis-app/maquis-backend/pkg/logger"
	"github.com/maquis-app/maquis-backend/pkg/metrics"
	"github.com/maquis-app/maquis-backend/pkg/money"
	"github.com/maquis-app/maquis-backend/pkg/outbox"
	"github.com/maquis-app/maquis-backend/pkg/outbox/payloads"
	"github.com/maquis-app/maquis-backend/pkg/payme"
	"github.com/maquis-app/maquis-backend/pkg/types"
)

const (
	mobileProvider = "payme"
	webhookScope   = "payme"
	defaultHookTTL = 168 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CardWallet is the slice of the card service settlement needs. The lock is
// held around the whole debit or credit unit of work including the commit.
type CardWallet interface {
	Lock(uid string) func()
	Debit(ctx context.Context, tx *gorm.DB, input cards.MutationInput) (*cards.MutationResult, error)
	Credit(ctx context.Context, tx *gorm.DB, input cards.MutationInput) (*cards.MutationResult, error)
}

// Gateway is the synchronous mobile money charge surface.
type Gateway interface {
	Charge(ctx context.Context, req payme.ChargeRequest) (*payme.ChargeResult, error)
}

// WebhookGuard deduplicates gateway callback deliveries.
type WebhookGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// SettleInput carries the cashier's settlement request. Exactly the fields for
// the chosen method are read.
type SettleInput struct {
	OrderID             uuid.UUID
	Method              enums.PaymentMethod
	AmountReceivedCents int64
	CardUID             string
	Phone               string
	CashierUserID       uuid.UUID
	ActorRole           enums.ActorRole
}

// RefundInput reverses part or all of a settled payment.
type RefundInput struct {
	PaymentID   uuid.UUID
	AmountCents int64
	Reason      string
	ActorUserID uuid.UUID
	ActorRole   enums.ActorRole
}

// Service settles served orders and manages the payment lifecycle.
type Service interface {
	Settle(ctx context.Context, input SettleInput) (*models.Payment, error)
	ConfirmExternalPayment(ctx context.Context, transactionID, status string) error
	Refund(ctx context.Context, input RefundInput) (*models.Payment, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

// Options tunes gateway-facing behavior.
type Options struct {
	CallbackURL string
	WebhookTTL  time.Duration
}

type service struct {
	repo        Repository
	orders      orders.Repository
	wallet      CardWallet
	gateway     Gateway
	receipts    ReceiptSource
	tx          txRunner
	outbox      outboxPublisher
	guard       WebhookGuard
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
	locks       *orderLocks
	callbackURL string
	webhookTTL  time.Duration
	nowFunc     func() time.Time
}

// NewService wires the settlement engine.
func NewService(
	repo Repository,
	ordersRepo orders.Repository,
	wallet CardWallet,
	gateway Gateway,
	receipts ReceiptSource,
	tx txRunner,
	outboxSvc outboxPublisher,
	guard WebhookGuard,
	m *metrics.PaymentMetrics,
	logg *logger.Logger,
	opts Options,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if wallet == nil {
		return nil, fmt.Errorf("card wallet required")
	}
	if receipts == nil {
		return nil, fmt.Errorf("receipt source required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	ttl := opts.WebhookTTL
	if ttl <= 0 {
		ttl = defaultHookTTL
	}
	return &service{
		repo:        repo,
		orders:      ordersRepo,
		wallet:      wallet,
		gateway:     gateway,
		receipts:    receipts,
		tx:          tx,
		outbox:      outboxSvc,
		guard:       guard,
		metrics:     m,
		logg:        logg,
		locks:       newOrderLocks(),
		callbackURL: opts.CallbackURL,
		webhookTTL:  ttl,
		nowFunc:     time.Now,
	}, nil
}

func (s *service) Settle(ctx context.Context, input SettleInput) (*models.Payment, error) {
	if input.ActorRole != enums.RoleCashier && input.ActorRole != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only cashiers can settle orders")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}

	unlock := s.locks.lock(input.OrderID)
	defer unlock()

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusServed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order must be served before settlement")
	}
	existing, err := s.repo.FindSettledByOrder(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing payments")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already settled")
	}

	started := s.nowFunc()
	var payment *models.Payment
	switch input.Method {
	case enums.PaymentMethodCash:
		payment, err = s.settleCash(ctx, order, input)
	case enums.PaymentMethodCard:
		payment, err = s.settleCard(ctx, order, input)
	case enums.PaymentMethodMobile:
		payment, err = s.settleMobile(ctx, order, input)
	default:
		// TODO: voucher settlement once vouchers are modelled
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("method %s cannot be settled", input.Method))
	}
	if err != nil {
		s.metrics.IncFailed(input.Method.String(), failureReason(err))
		return nil, err
	}

	s.metrics.IncSettled(input.Method.String())
	s.metrics.ObserveDuration(input.Method.String(), s.nowFunc().Sub(started))
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"method":   input.Method.String(),
			"receipt":  payment.ReceiptNumber,
		}), "order settled")
	}
	return payment, nil
}

func (s *service) settleCash(ctx context.Context, order *models.Order, input SettleInput) (*models.Payment, error) {
	total := money.MustFromCents(order.TotalCents)
	received, err := money.FromCents(input.AmountReceivedCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "amount received")
	}
	if received.LessThan(total) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "amount received is less than the order total")
	}
	change, err := received.Sub(total)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute change")
	}

	receipt, err := s.receipts.Next(ctx)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	payment := &models.Payment{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodCash,
		Status:        enums.PaymentStatusCompleted,
		AmountCents:   order.TotalCents,
		ReceiptNumber: receipt,
		Details: &types.PaymentDetails{
			AmountReceivedCents: input.AmountReceivedCents,
			ChangeCents:         change.Cents(),
		},
		CashierUserID: &input.CashierUserID,
		ConfirmedAt:   &now,
		ProcessedAt:   now,
	}

	if err := s.finalize(ctx, order, payment, input); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) settleCard(ctx context.Context, order *models.Order, input SettleInput) (*models.Payment, error) {
	// Held past the commit so a concurrent debit of the same card observes
	// the committed balance.
	unlock := s.wallet.Lock(input.CardUID)
	defer unlock()

	receipt, err := s.receipts.Next(ctx)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	var payment *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		debit, err := s.wallet.Debit(ctx, tx, cards.MutationInput{
			UID:         input.CardUID,
			AmountCents: order.TotalCents,
			OrderID:     &order.ID,
			ActorUserID: input.CashierUserID,
		})
		if err != nil {
			return err
		}

		before := debit.BalanceBeforeCents
		after := debit.BalanceAfterCents
		payment = &models.Payment{
			OrderID:       order.ID,
			Method:        enums.PaymentMethodCard,
			Status:        enums.PaymentStatusCompleted,
			AmountCents:   order.TotalCents,
			ReceiptNumber: receipt,
			Details: &types.PaymentDetails{
				CardUID:            debit.UID,
				BalanceBeforeCents: &before,
				BalanceAfterCents:  &after,
			},
			CashierUserID: &input.CashierUserID,
			ConfirmedAt:   &now,
			ProcessedAt:   now,
		}
		return s.finalizeTx(ctx, tx, order, payment, input)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) settleMobile(ctx context.Context, order *models.Order, input SettleInput) (*models.Payment, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mobile money gateway not configured")
	}
	if strings.TrimSpace(input.Phone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer phone number is required")
	}

	receipt, err := s.receipts.Next(ctx)
	if err != nil {
		return nil, err
	}

	// The gateway call happens before any local write so a transport or
	// provider failure leaves the order untouched and retryable.
	charge, err := s.gateway.Charge(ctx, payme.ChargeRequest{
		AmountCents: order.TotalCents,
		Phone:       input.Phone,
		OrderID:     order.ID.String(),
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	txID := charge.TransactionID
	payment := &models.Payment{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodMobile,
		Status:        enums.PaymentStatusCompleted,
		AmountCents:   order.TotalCents,
		ReceiptNumber: receipt,
		TransactionID: &txID,
		Details: &types.PaymentDetails{
			Phone:    input.Phone,
			Provider: mobileProvider,
		},
		CashierUserID: &input.CashierUserID,
		ConfirmedAt:   &now,
		ProcessedAt:   now,
	}

	if err := s.finalize(ctx, order, payment, input); err != nil {
		// Money moved at the gateway but local state did not.
		return nil, s.flagReconciliation(ctx, order.ID, txID, err)
	}
	return payment, nil
}

// finalize runs finalizeTx inside its own transaction.
func (s *service) finalize(ctx context.Context, order *models.Order, payment *models.Payment, input SettleInput) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.finalizeTx(ctx, tx, order, payment, input)
	})
}

// finalizeTx persists the payment, flips the order to paid and queues the
// domain event, all on the caller's transaction.
func (s *service) finalizeTx(ctx context.Context, tx *gorm.DB, order *models.Order, payment *models.Payment, input SettleInput) error {
	repo := s.repo.WithTx(tx)
	created, err := repo.Create(ctx, payment)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
	}
	*payment = *created

	now := s.nowFunc()
	moved, err := s.orders.WithTx(tx).TransitionStatus(ctx, order.ID, enums.OrderStatusServed, enums.OrderStatusPaid, map[string]any{
		"paid_at": now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order left the served state during settlement")
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: input.CashierUserID, Role: input.ActorRole.String()},
		Data: payloads.OrderPaidEvent{
			OrderID:       order.ID,
			PaymentID:     payment.ID,
			Method:        payment.Method,
			AmountCents:   payment.AmountCents,
			ReceiptNumber: payment.ReceiptNumber,
			PaidAt:        now,
		},
		Version: 1,
	})
}

func (s *service) ConfirmExternalPayment(ctx context.Context, transactionID, status string) error {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	status = strings.ToLower(strings.TrimSpace(status))

	var key string
	if s.guard != nil {
		key = s.guard.IdempotencyKey(webhookScope, transactionID+":"+status)
		first, err := s.guard.SetNX(ctx, key, "1", s.webhookTTL)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedupe")
		}
		if !first {
			return nil
		}
	}

	err := s.applyExternalStatus(ctx, transactionID, status)
	if err != nil && key != "" && !pkgerrors.HasCode(err, pkgerrors.CodeReconciliation) {
		// A transient failure must not burn the dedupe key or the gateway's
		// redelivery becomes a permanent no-op. Reconciliation is a recorded
		// outcome; its key stays so redeliveries do not re-flag.
		if delErr := s.guard.Del(ctx, key); delErr != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "transaction_id", transactionID), "failed to release webhook dedupe key")
		}
	}
	return err
}

func (s *service) applyExternalStatus(ctx context.Context, transactionID, status string) error {
	payment, err := s.repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no payment for transaction")
	}

	switch status {
	case "success", "completed":
		now := s.nowFunc()
		moved, err := s.repo.UpdateStatusCAS(ctx, payment.ID, enums.PaymentStatusPending, enums.PaymentStatusCompleted, map[string]any{
			"confirmed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
		}
		if !moved && payment.Status != enums.PaymentStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment is %s, cannot confirm", payment.Status))
		}
		return nil
	case "failed", "cancelled":
		if payment.Status == enums.PaymentStatusCompleted {
			// A reversal on settled money is never applied silently.
			return s.flagReconciliation(ctx, payment.OrderID, transactionID, nil)
		}
		moved, err := s.repo.UpdateStatusCAS(ctx, payment.ID, enums.PaymentStatusPending, enums.PaymentStatusFailed, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payment")
		}
		if moved {
			s.metrics.IncFailed(payment.Method.String(), "gateway_"+status)
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown gateway status %q", status))
	}
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Payment, error) {
	if input.ActorRole != enums.RoleCashier && input.ActorRole != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only cashiers can refund payments")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	payment, err := s.repo.FindByID(ctx, input.PaymentID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if payment.Status != enums.PaymentStatusCompleted && payment.Status != enums.PaymentStatusPartiallyRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only completed payments can be refunded")
	}
	remaining := payment.AmountCents - payment.RefundedAmountCents
	if input.AmountCents > remaining {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds the original charge")
	}

	newRefunded := payment.RefundedAmountCents + input.AmountCents
	next := enums.PaymentStatusPartiallyRefunded
	if newRefunded == payment.AmountCents {
		next = enums.PaymentStatusRefunded
	}

	refundsCard := payment.Method == enums.PaymentMethodCard && payment.Details != nil && payment.Details.CardUID != ""
	if refundsCard {
		unlock := s.wallet.Lock(payment.Details.CardUID)
		defer unlock()
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if refundsCard {
			note := "refund " + payment.ReceiptNumber
			_, err := s.wallet.Credit(ctx, tx, cards.MutationInput{
				UID:         payment.Details.CardUID,
				AmountCents: input.AmountCents,
				OrderID:     &payment.OrderID,
				ActorUserID: input.ActorUserID,
				Note:        &note,
			})
			if err != nil {
				return err
			}
		}

		moved, err := s.repo.WithTx(tx).UpdateStatusCAS(ctx, payment.ID, payment.Status, next, map[string]any{
			"refunded_amount_cents": newRefunded,
			"refund_reason":         input.Reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment was modified concurrently")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole.String()},
			Data: payloads.PaymentRefundedEvent{
				PaymentID:    payment.ID,
				OrderID:      payment.OrderID,
				AmountCents:  input.AmountCents,
				Reason:       input.Reason,
				RefundedAt:   s.nowFunc(),
				FullyRefunds: next == enums.PaymentStatusRefunded,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}

	payment.Status = next
	payment.RefundedAmountCents = newRefunded
	payment.RefundReason = &input.Reason
	return payment, nil
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}

// flagReconciliation records that external money state and local state
// disagree. The returned error always carries the reconciliation code.
func (s *service) flagReconciliation(ctx context.Context, orderID uuid.UUID, transactionID string, cause error) error {
	s.metrics.IncReconciliationFlagged()
	if s.logg != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"order_id":       orderID.String(),
			"transaction_id": transactionID,
		}), "payment requires manual reconciliation", cause)
	}

	detail := "gateway state diverged from local payment state"
	if cause != nil {
		detail = cause.Error()
	}
	emitErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentReconciliation,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.PaymentReconciliationEvent{
				OrderID:       orderID,
				TransactionID: transactionID,
				Detail:        detail,
				FlaggedAt:     s.nowFunc(),
			},
			Version: 1,
		})
	})

	err := pkgerrors.New(pkgerrors.CodeReconciliation, "payment requires manual reconciliation")
	if cause != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeReconciliation, cause, "payment requires manual reconciliation")
	}
	return multierr.Append(err, emitErr)
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func failureReason(err error) string {
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds):
		return "insufficient_funds"
	case pkgerrors.HasCode(err, pkgerrors.CodeExternalPayment):
		return "gateway"
	case pkgerrors.HasCode(err, pkgerrors.CodeValidation):
		return "validation"
	case pkgerrors.HasCode(err, pkgerrors.CodeReconciliation):
		return "reconciliation"
	case pkgerrors.HasCode(err, pkgerrors.CodeStateConflict):
		return "state_conflict"
	default:
		return "internal"
	}
}
