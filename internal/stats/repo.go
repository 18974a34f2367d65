package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maquis-app/maquis-backend/pkg/enums"
)

// DaySummary aggregates paid orders for one calendar day.
type DaySummary struct {
	Day               string `json:"day" gorm:"column:day"`
	OrderCount        int64  `json:"order_count" gorm:"column:order_count"`
	RevenueCents      int64  `json:"revenue_cents" gorm:"column:revenue_cents"`
	AverageOrderCents int64  `json:"average_order_cents" gorm:"column:average_order_cents"`
}

// ItemSales ranks a menu item by quantity sold.
type ItemSales struct {
	MenuItemID   uuid.UUID `json:"menu_item_id" gorm:"column:menu_item_id"`
	Name         string    `json:"name" gorm:"column:name"`
	Quantity     int64     `json:"quantity" gorm:"column:quantity"`
	RevenueCents int64     `json:"revenue_cents" gorm:"column:revenue_cents"`
}

// MethodRevenue totals settled payments per method.
type MethodRevenue struct {
	Method       enums.PaymentMethod `json:"method" gorm:"column:method"`
	PaymentCount int64               `json:"payment_count" gorm:"column:payment_count"`
	RevenueCents int64               `json:"revenue_cents" gorm:"column:revenue_cents"`
}

// Repository runs the read-only reporting queries.
type Repository interface {
	DailySummary(ctx context.Context, since time.Time) ([]DaySummary, error)
	TopItems(ctx context.Context, since time.Time, limit int) ([]ItemSales, error)
	RevenueByMethod(ctx context.Context, day string) ([]MethodRevenue, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stats repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) DailySummary(ctx context.Context, since time.Time) ([]DaySummary, error) {
	var rows []DaySummary
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			DATE(paid_at) AS day,
			COUNT(*) AS order_count,
			SUM(total_cents) AS revenue_cents,
			SUM(total_cents) / COUNT(*) AS average_order_cents
		FROM orders
		WHERE status = ? AND paid_at >= ?
		GROUP BY DATE(paid_at)
		ORDER BY day DESC`,
		enums.OrderStatusPaid, since,
	).Scan(&rows).Error
	return rows, err
}

func (r *repository) TopItems(ctx context.Context, since time.Time, limit int) ([]ItemSales, error) {
	var rows []ItemSales
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			oi.menu_item_id AS menu_item_id,
			oi.name AS name,
			SUM(oi.quantity) AS quantity,
			SUM(oi.quantity * oi.unit_price_cents) AS revenue_cents
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = ? AND o.paid_at >= ?
		GROUP BY oi.menu_item_id, oi.name
		ORDER BY quantity DESC, revenue_cents DESC
		LIMIT ?`,
		enums.OrderStatusPaid, since, limit,
	).Scan(&rows).Error
	return rows, err
}

func (r *repository) RevenueByMethod(ctx context.Context, day string) ([]MethodRevenue, error) {
	var rows []MethodRevenue
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			method,
			COUNT(*) AS payment_count,
			SUM(amount_cents - refunded_amount_cents) AS revenue_cents
		FROM payments
		WHERE status IN ? AND DATE(processed_at) = ?
		GROUP BY method
		ORDER BY revenue_cents DESC`,
		[]enums.PaymentStatus{
			enums.PaymentStatusCompleted,
			enums.PaymentStatusPartiallyRefunded,
			enums.PaymentStatusRefunded,
		}, day,
	).Scan(&rows).Error
	return rows, err
}
