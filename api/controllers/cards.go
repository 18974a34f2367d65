package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maquis-app/maquis-backend/api/middleware"
	"github.com/maquis-app/maquis-backend/api/responses"
	"github.com/maquis-app/maquis-backend/api/validators"
	"github.com/maquis-app/maquis-backend/internal/cards"
	"github.com/maquis-app/maquis-backend/pkg/db/models"
	"github.com/maquis-app/maquis-backend/pkg/enums"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
	"github.com/maquis-app/maquis-backend/pkg/logger"
	"github.com/maquis-app/maquis-backend/pkg/money"
)

type registerCardRequest struct {
	UID          string `json:"uid" validate:"required,len=14"`
	ClientID     string `json:"client_id" validate:"required,uuid4"`
	InitialCents int64  `json:"initial_cents" validate:"min=0"`
}

type rechargeCardRequest struct {
	AmountCents int64   `json:"amount_cents" validate:"required,min=1"`
	Note        *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

type deactivateCardRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type cardResponse struct {
	ID        uuid.UUID `json:"id"`
	UID       string    `json:"uid"`
	ClientID  uuid.UUID `json:"client_id"`
	Active    bool      `json:"active"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type mutationResponse struct {
	UID                string `json:"uid"`
	BalanceBeforeCents int64  `json:"balance_before_cents"`
	BalanceAfterCents  int64  `json:"balance_after_cents"`
	BalanceDisplay     string `json:"balance_display"`
}

type cardTransactionResponse struct {
	ID          uuid.UUID                 `json:"id"`
	Type        enums.CardTransactionType `json:"type"`
	AmountCents int64                     `json:"amount_cents"`
	OrderID     *uuid.UUID                `json:"order_id,omitempty"`
	Note        *string                   `json:"note,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
}

func toMutationResponse(result *cards.MutationResult) mutationResponse {
	return mutationResponse{
		UID:                result.UID,
		BalanceBeforeCents: result.BalanceBeforeCents,
		BalanceAfterCents:  result.BalanceAfterCents,
		BalanceDisplay:     money.MustFromCents(result.BalanceAfterCents).Display(),
	}
}

// CardRegister issues a new card to a client.
func CardRegister(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req registerCardRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid client id"))
			return
		}

		card, err := svc.Register(r.Context(), cards.RegisterInput{
			UID:          req.UID,
			ClientID:     clientID,
			InitialCents: req.InitialCents,
			ActorUserID:  userID,
			ActorRole:    role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toCardResponse(card))
	}
}

func toCardResponse(card *models.Card) cardResponse {
	return cardResponse{
		ID:        card.ID,
		UID:       card.UID,
		ClientID:  card.ClientID,
		Active:    card.Active,
		IssuedAt:  card.IssuedAt,
		ExpiresAt: card.ExpiresAt,
	}
}

// CardBalance returns the decrypted balance for a card.
func CardBalance(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetBalance(r.Context(), chi.URLParam(r, "uid"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CardVerify is the reader-boundary check before a card is accepted.
func CardVerify(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Verify(r.Context(), chi.URLParam(r, "uid"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CardRecharge tops up a card balance.
func CardRecharge(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req rechargeCardRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Recharge(r.Context(), cards.MutationInput{
			UID:         chi.URLParam(r, "uid"),
			AmountCents: req.AmountCents,
			ActorUserID: userID,
			Note:        req.Note,
		}, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toMutationResponse(result))
	}
}

// CardDeactivate retires a card. The balance stays sealed for audit.
func CardDeactivate(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req deactivateCardRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Deactivate(r.Context(), chi.URLParam(r, "uid"), req.Reason, role); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"active": false})
	}
}

// CardHistory lists a card's ledger, newest first.
func CardHistory(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.History(r.Context(), chi.URLParam(r, "uid"), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]cardTransactionResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, cardTransactionResponse{
				ID:          row.ID,
				Type:        row.Type,
				AmountCents: row.AmountCents,
				OrderID:     row.OrderID,
				Note:        row.Note,
				CreatedAt:   row.CreatedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}
