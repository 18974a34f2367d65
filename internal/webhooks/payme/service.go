package paymewebhook

import (
	"context"
	"strings"

	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
	"github.com/maquis-app/maquis-backend/pkg/logger"
)

// GuardScope namespaces the delivery dedupe keys.
const GuardScope = "payme-delivery"

// Callback is the gateway's notification payload.
type Callback struct {
	EventID       string `json:"event_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	AmountCents   int64  `json:"amount"`
	OrderID       string `json:"order_id"`
}

type paymentConfirmer interface {
	ConfirmExternalPayment(ctx context.Context, transactionID, status string) error
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type ServiceParams struct {
	Payments paymentConfirmer
	Guard    deliveryGuard
	Logger   *logger.Logger
}

// Service applies Payme callbacks to the payment lifecycle.
type Service struct {
	payments paymentConfirmer
	guard    deliveryGuard
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	return &Service{
		payments: params.Payments,
		guard:    params.Guard,
		logg:     params.Logger,
	}, nil
}

// HandleCallback processes one gateway delivery. Duplicates and already
// flagged reconciliation cases resolve to nil so the gateway stops retrying.
func (s *Service) HandleCallback(ctx context.Context, callback Callback) error {
	if strings.TrimSpace(callback.TransactionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction_id is required")
	}
	if strings.TrimSpace(callback.Status) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "status is required")
	}

	if s.guard != nil && callback.EventID != "" {
		seen, err := s.guard.CheckAndMark(ctx, callback.EventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "callback dedupe")
		}
		if seen {
			return nil
		}
	}

	err := s.payments.ConfirmExternalPayment(ctx, callback.TransactionID, callback.Status)
	if err == nil {
		return nil
	}
	if pkgerrors.HasCode(err, pkgerrors.CodeReconciliation) {
		// Already flagged downstream; retrying the delivery cannot fix it.
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "transaction_id", callback.TransactionID), "callback left payment in reconciliation", err)
		}
		return nil
	}
	if s.guard != nil && callback.EventID != "" {
		// Free the delivery id so the gateway's retry of this failed
		// delivery is not swallowed as a duplicate.
		if delErr := s.guard.Delete(ctx, callback.EventID); delErr != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "event_id", callback.EventID), "failed to release delivery id")
		}
	}
	return err
}
