package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/maquis-app/maquis-backend/api/middleware"
	"github.com/maquis-app/maquis-backend/api/responses"
	"github.com/maquis-app/maquis-backend/api/validators"
	"github.com/maquis-app/maquis-backend/internal/payments"
	"github.com/maquis-app/maquis-backend/pkg/db/models"
	"github.com/maquis-app/maquis-backend/pkg/enums"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
	"github.com/maquis-app/maquis-backend/pkg/logger"
	"github.com/maquis-app/maquis-backend/pkg/money"
	"github.com/maquis-app/maquis-backend/pkg/types"
)

type settlePaymentRequest struct {
	OrderID             string `json:"order_id" validate:"required,uuid4"`
	Method              string `json:"method" validate:"required"`
	AmountReceivedCents int64  `json:"amount_received_cents,omitempty" validate:"omitempty,min=0"`
	CardUID             string `json:"card_uid,omitempty" validate:"omitempty,len=14"`
	Phone               string `json:"phone,omitempty" validate:"omitempty,e164"`
}

type refundPaymentRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,min=1"`
	Reason      string `json:"reason" validate:"required,max=500"`
}

type paymentResponse struct {
	ID                  uuid.UUID             `json:"id"`
	OrderID             uuid.UUID             `json:"order_id"`
	Method              enums.PaymentMethod   `json:"method"`
	Status              enums.PaymentStatus   `json:"status"`
	AmountCents         int64                 `json:"amount_cents"`
	AmountDisplay       string                `json:"amount_display"`
	ReceiptNumber       string                `json:"receipt_number"`
	TransactionID       *string               `json:"transaction_id,omitempty"`
	Details             *types.PaymentDetails `json:"details,omitempty"`
	RefundedAmountCents int64                 `json:"refunded_amount_cents"`
	RefundReason        *string               `json:"refund_reason,omitempty"`
	ConfirmedAt         *time.Time            `json:"confirmed_at,omitempty"`
	ProcessedAt         time.Time             `json:"processed_at"`
}

func toPaymentResponse(payment *models.Payment) paymentResponse {
	return paymentResponse{
		ID:                  payment.ID,
		OrderID:             payment.OrderID,
		Method:              payment.Method,
		Status:              payment.Status,
		AmountCents:         payment.AmountCents,
		AmountDisplay:       money.MustFromCents(payment.AmountCents).Display(),
		ReceiptNumber:       payment.ReceiptNumber,
		TransactionID:       payment.TransactionID,
		Details:             payment.Details,
		RefundedAmountCents: payment.RefundedAmountCents,
		RefundReason:        payment.RefundReason,
		ConfirmedAt:         payment.ConfirmedAt,
		ProcessedAt:         payment.ProcessedAt,
	}
}

// PaymentSettle settles a served order with cash, card, or mobile money.
func PaymentSettle(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req settlePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}
		method, err := enums.ParsePaymentMethod(req.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method"))
			return
		}

		payment, err := svc.Settle(r.Context(), payments.SettleInput{
			OrderID:             orderID,
			Method:              method,
			AmountReceivedCents: req.AmountReceivedCents,
			CardUID:             req.CardUID,
			Phone:               req.Phone,
			CashierUserID:       userID,
			ActorRole:           role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPaymentResponse(payment))
	}
}

// PaymentRefund reverses part or all of a settled payment.
func PaymentRefund(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := parseIDParam(r, "paymentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Refund(r.Context(), payments.RefundInput{
			PaymentID:   paymentID,
			AmountCents: req.AmountCents,
			Reason:      req.Reason,
			ActorUserID: userID,
			ActorRole:   role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentResponse(payment))
	}
}

// PaymentGet returns a single payment by id.
func PaymentGet(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := parseIDParam(r, "paymentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Get(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentResponse(payment))
	}
}

// PaymentListForOrder returns every payment attempt against an order.
func PaymentListForOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]paymentResponse, 0, len(list))
		for i := range list {
			out = append(out, toPaymentResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
