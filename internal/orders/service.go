package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maquis-app/maquis-backend/internal/catalog"
	"github.com/maquis-app/maquis-backend/pkg/db/models"
	"github.com/maquis-app/maquis-backend/pkg/enums"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
	"github.com/maquis-app/maquis-backend/pkg/money"
	"github.com/maquis-app/maquis-backend/pkg/outbox"
	"github.com/maquis-app/maquis-backend/pkg/outbox/payloads"
)

const (
	maxOrderItems      = 15
	maxItemQuantity    = 20
	maxInstructionsLen = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines the order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actorUserID uuid.UUID, actorRole enums.ActorRole) (*models.Order, error)
	ListForClient(ctx context.Context, clientID uuid.UUID, limit int) ([]models.Order, error)
	Cancel(ctx context.Context, input CancelInput) error
	StartPreparation(ctx context.Context, input TransitionInput) error
	MarkReady(ctx context.Context, input TransitionInput) error
	MarkServed(ctx context.Context, input TransitionInput) error
	KitchenQueue(ctx context.Context) ([]QueueEntry, error)
	ReadyOrders(ctx context.Context) ([]QueueEntry, error)
	AwaitingPayment(ctx context.Context) ([]QueueEntry, error)
}

type service struct {
	repo    Repository
	menu    catalog.Lookup
	tx      txRunner
	outbox  outboxPublisher
	nowFunc func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, menu catalog.Lookup, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if menu == nil {
		return nil, fmt.Errorf("catalog lookup required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    repo,
		menu:    menu,
		tx:      tx,
		outbox:  outboxSvc,
		nowFunc: time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "client identity missing")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	if len(input.Items) > maxOrderItems {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order cannot exceed %d items", maxOrderItems))
	}
	if !input.IsTakeaway && (input.TableID == nil || *input.TableID == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table reference required for dine-in orders")
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, line := range input.Items {
		if line.MenuItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item id required on every line")
		}
		if line.Quantity < 1 || line.Quantity > maxItemQuantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item quantity must be between 1 and %d", maxItemQuantity))
		}
		if line.Instructions != nil && len(*line.Instructions) > maxInstructionsLen {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item instructions cannot exceed %d characters", maxInstructionsLen))
		}
		ids = append(ids, line.MenuItemID)
	}

	menuItems, err := s.menu.LookupMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	total := money.Zero
	maxPrep := 0
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, line := range input.Items {
		menuItem, ok := menuItems[line.MenuItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("menu item %s not found", line.MenuItemID))
		}
		if !menuItem.Available {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("menu item %q is not available", menuItem.Name))
		}

		unit, err := money.FromCents(menuItem.PriceCents)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "catalog price invalid")
		}
		lineTotal, err := unit.MulQty(line.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "line total")
		}
		total, err = total.Add(lineTotal)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order total")
		}

		if menuItem.PrepMinutes > maxPrep {
			maxPrep = menuItem.PrepMinutes
		}
		items = append(items, models.OrderItem{
			MenuItemID:     menuItem.ID,
			Name:           menuItem.Name,
			UnitPriceCents: menuItem.PriceCents,
			Quantity:       line.Quantity,
			Instructions:   line.Instructions,
		})
	}

	estimatedReady := now.Add(time.Duration(maxPrep) * time.Minute)
	order := &models.Order{
		ClientID:         input.ClientID,
		TableID:          input.TableID,
		IsTakeaway:       input.IsTakeaway,
		Status:           enums.OrderStatusPending,
		TotalCents:       total.Cents(),
		SpecialRequests:  input.SpecialRequests,
		EstimatedReadyAt: &estimatedReady,
		Items:            items,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.Create(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}
		order = created

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.ClientID, Role: enums.RoleClient.String()},
			Data: payloads.OrderCreatedEvent{
				OrderID:          order.ID,
				ClientID:         order.ClientID,
				TableID:          order.TableID,
				IsTakeaway:       order.IsTakeaway,
				TotalCents:       order.TotalCents,
				ItemCount:        len(order.Items),
				EstimatedReadyAt: order.EstimatedReadyAt,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actorUserID uuid.UUID, actorRole enums.ActorRole) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actorRole.IsStaff() && order.ClientID != actorUserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another client")
	}
	return order, nil
}

func (s *service) ListForClient(ctx context.Context, clientID uuid.UUID, limit int) ([]models.Order, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "client identity missing")
	}
	rows, err := s.repo.ListByClient(ctx, clientID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list client orders")
	}
	return rows, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return err
	}
	if input.ActorRole != enums.RoleAdmin && order.ClientID != input.ActorUserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another client")
	}

	now := s.nowFunc()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		moved, err := repo.TransitionStatus(ctx, input.OrderID, enums.OrderStatusPending, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   input.OrderID,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole.String()},
			Data: payloads.OrderCancelledEvent{
				OrderID:     input.OrderID,
				ClientID:    order.ClientID,
				CancelledAt: now,
				Reason:      input.Reason,
			},
			Version: 1,
		})
	})
}

func (s *service) StartPreparation(ctx context.Context, input TransitionInput) error {
	if err := requireRole(input.ActorRole, enums.RoleKitchen, enums.RoleAdmin); err != nil {
		return err
	}
	return s.transition(ctx, input.OrderID, enums.OrderStatusPending, enums.OrderStatusPreparing, nil,
		"only pending orders can enter preparation")
}

func (s *service) MarkReady(ctx context.Context, input TransitionInput) error {
	if err := requireRole(input.ActorRole, enums.RoleKitchen, enums.RoleAdmin); err != nil {
		return err
	}
	return s.transition(ctx, input.OrderID, enums.OrderStatusPreparing, enums.OrderStatusReady, map[string]any{
		"ready_at": s.nowFunc(),
	}, "only preparing orders can be marked ready")
}

func (s *service) MarkServed(ctx context.Context, input TransitionInput) error {
	if err := requireRole(input.ActorRole, enums.RoleWaiter, enums.RoleAdmin); err != nil {
		return err
	}
	return s.transition(ctx, input.OrderID, enums.OrderStatusReady, enums.OrderStatusServed, map[string]any{
		"served_at": s.nowFunc(),
	}, "only ready orders can be served")
}

func (s *service) KitchenQueue(ctx context.Context) ([]QueueEntry, error) {
	return s.queue(ctx, enums.OrderStatusPending, enums.OrderStatusPreparing)
}

func (s *service) ReadyOrders(ctx context.Context) ([]QueueEntry, error) {
	return s.queue(ctx, enums.OrderStatusReady)
}

func (s *service) AwaitingPayment(ctx context.Context) ([]QueueEntry, error) {
	return s.queue(ctx, enums.OrderStatusServed)
}

func (s *service) queue(ctx context.Context, statuses ...enums.OrderStatus) ([]QueueEntry, error) {
	rows, err := s.repo.ListByStatuses(ctx, statuses)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders by status")
	}
	entries := make([]QueueEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, QueueEntry{
			OrderID:          row.ID,
			Status:           row.Status,
			TableID:          row.TableID,
			IsTakeaway:       row.IsTakeaway,
			ItemCount:        len(row.Items),
			TotalCents:       row.TotalCents,
			EstimatedReadyAt: row.EstimatedReadyAt,
			CreatedAt:        row.CreatedAt,
		})
	}
	return entries, nil
}

func (s *service) transition(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any, conflictMsg string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if _, err := s.loadOrder(ctx, orderID); err != nil {
		return err
	}
	moved, err := s.repo.TransitionStatus(ctx, orderID, from, to, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition order status")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, conflictMsg)
	}
	return nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func requireRole(actual enums.ActorRole, allowed ...enums.ActorRole) error {
	for _, role := range allowed {
		if actual == role {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("role %q cannot perform this action", actual))
}
