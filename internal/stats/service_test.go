package stats

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/maquis-app/maquis-backend/pkg/db/models"
	"github.com/maquis-app/maquis-backend/pkg/enums"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
)

func setupStatsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  table_id TEXT,
  is_takeaway INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  total_cents INTEGER NOT NULL,
  special_requests TEXT,
  estimated_ready_at DATETIME,
  ready_at DATETIME,
  served_at DATETIME,
  paid_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  menu_item_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  instructions TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  method TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  amount_cents INTEGER NOT NULL,
  receipt_number TEXT NOT NULL UNIQUE,
  transaction_id TEXT UNIQUE,
  details TEXT,
  cashier_user_id TEXT,
  refunded_amount_cents INTEGER NOT NULL DEFAULT 0,
  refund_reason TEXT,
  confirmed_at DATETIME,
  processed_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

func seedPaidOrder(t *testing.T, db *gorm.DB, paidAt time.Time, items []models.OrderItem) uuid.UUID {
	t.Helper()

	total := int64(0)
	for i := range items {
		total += items[i].UnitPriceCents * int64(items[i].Quantity)
	}

	order := models.Order{
		ID:         uuid.New(),
		ClientID:   uuid.New(),
		IsTakeaway: true,
		Status:     enums.OrderStatusPaid,
		TotalCents: total,
		PaidAt:     &paidAt,
	}
	require.NoError(t, db.Create(&order).Error)
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = order.ID
		require.NoError(t, db.Create(&items[i]).Error)
	}
	return order.ID
}

func seedPayment(t *testing.T, db *gorm.DB, orderID uuid.UUID, method enums.PaymentMethod, status enums.PaymentStatus, amount, refunded int64, processedAt time.Time) {
	t.Helper()
	payment := models.Payment{
		ID:                  uuid.New(),
		OrderID:             orderID,
		Method:              method,
		Status:              status,
		AmountCents:         amount,
		ReceiptNumber:       "PAY-TEST-" + uuid.NewString()[:8],
		RefundedAmountCents: refunded,
		ProcessedAt:         processedAt,
	}
	require.NoError(t, db.Create(&payment).Error)
}

func TestDailySummaryGroupsByDay(t *testing.T) {
	db := setupStatsTestDB(t)
	garbaID := uuid.New()

	today := time.Now().Truncate(24 * time.Hour).Add(12 * time.Hour)
	yesterday := today.AddDate(0, 0, -1)

	seedPaidOrder(t, db, today, []models.OrderItem{
		{MenuItemID: garbaID, Name: "Garba", UnitPriceCents: 150000, Quantity: 2},
	})
	seedPaidOrder(t, db, today, []models.OrderItem{
		{MenuItemID: garbaID, Name: "Garba", UnitPriceCents: 150000, Quantity: 1},
	})
	seedPaidOrder(t, db, yesterday, []models.OrderItem{
		{MenuItemID: uuid.New(), Name: "Attieke poisson", UnitPriceCents: 250000, Quantity: 1},
	})

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	rows, err := svc.DailySummary(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(2), rows[0].OrderCount)
	assert.Equal(t, int64(450000), rows[0].RevenueCents)
	assert.Equal(t, int64(225000), rows[0].AverageOrderCents)
	assert.Equal(t, int64(1), rows[1].OrderCount)
	assert.Equal(t, int64(250000), rows[1].RevenueCents)
}

func TestDailySummaryIgnoresUnpaidOrders(t *testing.T) {
	db := setupStatsTestDB(t)
	now := time.Now()

	order := models.Order{
		ID:         uuid.New(),
		ClientID:   uuid.New(),
		IsTakeaway: true,
		Status:     enums.OrderStatusServed,
		TotalCents: 100000,
		PaidAt:     &now,
	}
	require.NoError(t, db.Create(&order).Error)

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	rows, err := svc.DailySummary(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTopItemsRanksByQuantity(t *testing.T) {
	db := setupStatsTestDB(t)
	garbaID := uuid.New()
	alokoID := uuid.New()
	now := time.Now()

	seedPaidOrder(t, db, now, []models.OrderItem{
		{MenuItemID: garbaID, Name: "Garba", UnitPriceCents: 150000, Quantity: 3},
		{MenuItemID: alokoID, Name: "Aloko", UnitPriceCents: 100000, Quantity: 1},
	})
	seedPaidOrder(t, db, now, []models.OrderItem{
		{MenuItemID: garbaID, Name: "Garba", UnitPriceCents: 150000, Quantity: 2},
	})

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	rows, err := svc.TopItems(context.Background(), 10, 7)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Garba", rows[0].Name)
	assert.Equal(t, int64(5), rows[0].Quantity)
	assert.Equal(t, int64(750000), rows[0].RevenueCents)
	assert.Equal(t, "Aloko", rows[1].Name)
}

func TestRevenueByMethodNetsRefunds(t *testing.T) {
	db := setupStatsTestDB(t)
	now := time.Now()
	day := now.Format("2006-01-02")

	orderID := seedPaidOrder(t, db, now, []models.OrderItem{
		{MenuItemID: uuid.New(), Name: "Garba", UnitPriceCents: 150000, Quantity: 2},
	})
	seedPayment(t, db, orderID, enums.PaymentMethodCash, enums.PaymentStatusCompleted, 300000, 0, now)
	seedPayment(t, db, uuid.New(), enums.PaymentMethodCard, enums.PaymentStatusPartiallyRefunded, 500000, 100000, now)
	seedPayment(t, db, uuid.New(), enums.PaymentMethodMobile, enums.PaymentStatusFailed, 200000, 0, now)

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	rows, err := svc.RevenueByMethod(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.PaymentMethodCard, rows[0].Method)
	assert.Equal(t, int64(400000), rows[0].RevenueCents)
	assert.Equal(t, enums.PaymentMethodCash, rows[1].Method)
	assert.Equal(t, int64(300000), rows[1].RevenueCents)
}

func TestWindowValidation(t *testing.T) {
	db := setupStatsTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.DailySummary(ctx, 400)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.TopItems(ctx, 500, 7)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.RevenueByMethod(ctx, "01-09-2026")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
