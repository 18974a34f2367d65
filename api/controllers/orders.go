package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maquis-app/maquis-backend/api/middleware"
	"github.com/maquis-app/maquis-backend/api/responses"
	"github.com/maquis-app/maquis-backend/api/validators"
	"github.com/maquis-app/maquis-backend/internal/orders"
	"github.com/maquis-app/maquis-backend/pkg/db/models"
	"github.com/maquis-app/maquis-backend/pkg/enums"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
	"github.com/maquis-app/maquis-backend/pkg/logger"
	"github.com/maquis-app/maquis-backend/pkg/money"
)

type createOrderItemRequest struct {
	MenuItemID   string  `json:"menu_item_id" validate:"required,uuid4"`
	Quantity     int     `json:"quantity" validate:"required,min=1,max=50"`
	Instructions *string `json:"instructions,omitempty" validate:"omitempty,max=500"`
}

type createOrderRequest struct {
	TableID         *string                  `json:"table_id,omitempty" validate:"omitempty,max=16"`
	IsTakeaway      bool                     `json:"is_takeaway"`
	SpecialRequests *string                  `json:"special_requests,omitempty" validate:"omitempty,max=1000"`
	Items           []createOrderItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type orderItemResponse struct {
	ID             uuid.UUID `json:"id"`
	MenuItemID     uuid.UUID `json:"menu_item_id"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
	LineTotalCents int64     `json:"line_total_cents"`
	Instructions   *string   `json:"instructions,omitempty"`
}

type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	ClientID         uuid.UUID           `json:"client_id"`
	TableID          *string             `json:"table_id,omitempty"`
	IsTakeaway       bool                `json:"is_takeaway"`
	Status           enums.OrderStatus   `json:"status"`
	TotalCents       int64               `json:"total_cents"`
	TotalDisplay     string              `json:"total_display"`
	SpecialRequests  *string             `json:"special_requests,omitempty"`
	EstimatedReadyAt *time.Time          `json:"estimated_ready_at,omitempty"`
	ReadyAt          *time.Time          `json:"ready_at,omitempty"`
	ServedAt         *time.Time          `json:"served_at,omitempty"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	CancelledAt      *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	Items            []orderItemResponse `json:"items"`
}

func toOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:             item.ID,
			MenuItemID:     item.MenuItemID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.LineTotalCents(),
			Instructions:   item.Instructions,
		})
	}
	return orderResponse{
		ID:               order.ID,
		ClientID:         order.ClientID,
		TableID:          order.TableID,
		IsTakeaway:       order.IsTakeaway,
		Status:           order.Status,
		TotalCents:       order.TotalCents,
		TotalDisplay:     money.MustFromCents(order.TotalCents).Display(),
		SpecialRequests:  order.SpecialRequests,
		EstimatedReadyAt: order.EstimatedReadyAt,
		ReadyAt:          order.ReadyAt,
		ServedAt:         order.ServedAt,
		PaidAt:           order.PaidAt,
		CancelledAt:      order.CancelledAt,
		CreatedAt:        order.CreatedAt,
		Items:            items,
	}
}

// OrderCreate places a new order for the authenticated client.
func OrderCreate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := orders.CreateOrderInput{
			ClientID:        userID,
			TableID:         req.TableID,
			IsTakeaway:      req.IsTakeaway,
			SpecialRequests: req.SpecialRequests,
			Items:           make([]orders.CreateOrderItemInput, 0, len(req.Items)),
		}
		for _, item := range req.Items {
			menuItemID, parseErr := uuid.Parse(item.MenuItemID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid menu item id"))
				return
			}
			input.Items = append(input.Items, orders.CreateOrderItemInput{
				MenuItemID:   menuItemID,
				Quantity:     item.Quantity,
				Instructions: item.Instructions,
			})
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderResponse(order))
	}
}

// OrderGet returns a single order. Clients only see their own orders.
func OrderGet(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// OrderList returns the authenticated client's recent orders.
func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForClient(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]orderResponse, 0, len(list))
		for i := range list {
			out = append(out, toOrderResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// OrderCancel cancels an order still in the pending state.
func OrderCancel(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := transitionInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelOrderRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		if err := svc.Cancel(r.Context(), orders.CancelInput{TransitionInput: input, Reason: req.Reason}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusCancelled)})
	}
}

// OrderStartPreparation moves a pending order into preparation.
func OrderStartPreparation(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.StartPreparation, enums.OrderStatusPreparing, logg)
}

// OrderMarkReady marks a preparing order as ready for pickup.
func OrderMarkReady(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.MarkReady, enums.OrderStatusReady, logg)
}

// OrderMarkServed records that a ready order reached the table.
func OrderMarkServed(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.MarkServed, enums.OrderStatusServed, logg)
}

// OrderKitchenQueue lists pending and preparing orders oldest first.
func OrderKitchenQueue(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return queueHandler(svc.KitchenQueue, logg)
}

// OrderReadyQueue lists orders waiting to be served.
func OrderReadyQueue(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return queueHandler(svc.ReadyOrders, logg)
}

// OrderAwaitingPayment lists served orders without a settled payment.
func OrderAwaitingPayment(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return queueHandler(svc.AwaitingPayment, logg)
}

func transitionHandler(fn func(context.Context, orders.TransitionInput) error, next enums.OrderStatus, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := transitionInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := fn(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(next)})
	}
}

func queueHandler(fn func(context.Context) ([]orders.QueueEntry, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := fn(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}

func transitionInput(r *http.Request) (orders.TransitionInput, error) {
	userID, role, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		return orders.TransitionInput{}, err
	}
	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		return orders.TransitionInput{}, err
	}
	return orders.TransitionInput{OrderID: orderID, ActorUserID: userID, ActorRole: role}, nil
}

func parseIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid id in path").WithDetails(map[string]string{"param": name})
	}
	return id, nil
}
