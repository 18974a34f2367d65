package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/maquis-app/maquis-backend/internal/cards"
	"github.com/maquis-app/maquis-backend/internal/orders"
	"github.com/maquis-app/maquis-backend/pkg/db/models"
	"github.com/maquis-app/maquis-backend/pkg/enums"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
	"github.com/maquis-app/maquis-backend/pkg/outbox"
	"github.com/maquis-app/maquis-backend/pkg/payme"
	"github.com/maquis-app/maquis-backend/pkg/types"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ordersTable := `
CREATE TABLE IF NOT EXISTS orders (
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
);`
	orderItemsTable := `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  menu_item_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  instructions TEXT,
  created_at DATETIME
);`
	paymentsTable := `
CREATE TABLE IF NOT EXISTS payments (
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
);`
	require.NoError(t, db.Exec(ordersTable).Error)
	require.NoError(t, db.Exec(orderItemsTable).Error)
	require.NoError(t, db.Exec(paymentsTable).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

type recordingOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingOutbox) has(eventType enums.OutboxEventType) bool {
	return r.count(eventType) > 0
}

func (r *recordingOutbox) count(eventType enums.OutboxEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, event := range r.events {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

type stubWallet struct {
	mu       sync.Mutex
	cardMu   sync.Mutex
	locked   []string
	balances map[string]int64
	debits   []cards.MutationInput
	credits  []cards.MutationInput
}

func newStubWallet(balances map[string]int64) *stubWallet {
	return &stubWallet{balances: balances}
}

func (w *stubWallet) Lock(uid string) func() {
	w.cardMu.Lock()
	w.mu.Lock()
	w.locked = append(w.locked, uid)
	w.mu.Unlock()
	return w.cardMu.Unlock
}

func (w *stubWallet) Debit(ctx context.Context, tx *gorm.DB, input cards.MutationInput) (*cards.MutationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	before, ok := w.balances[input.UID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "card not found")
	}
	if before < input.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "card balance is insufficient")
	}
	w.balances[input.UID] = before - input.AmountCents
	w.debits = append(w.debits, input)
	return &cards.MutationResult{
		CardID:             uuid.New(),
		UID:                input.UID,
		BalanceBeforeCents: before,
		BalanceAfterCents:  before - input.AmountCents,
	}, nil
}

func (w *stubWallet) Credit(ctx context.Context, tx *gorm.DB, input cards.MutationInput) (*cards.MutationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	before, ok := w.balances[input.UID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "card not found")
	}
	w.balances[input.UID] = before + input.AmountCents
	w.credits = append(w.credits, input)
	return &cards.MutationResult{
		CardID:             uuid.New(),
		UID:                input.UID,
		BalanceBeforeCents: before,
		BalanceAfterCents:  before + input.AmountCents,
	}, nil
}

type stubGateway struct {
	chargeFn func(ctx context.Context, req payme.ChargeRequest) (*payme.ChargeResult, error)
	requests []payme.ChargeRequest
}

func (g *stubGateway) Charge(ctx context.Context, req payme.ChargeRequest) (*payme.ChargeResult, error) {
	g.requests = append(g.requests, req)
	if g.chargeFn != nil {
		return g.chargeFn(ctx, req)
	}
	return &payme.ChargeResult{TransactionID: "tx-" + uuid.NewString(), Status: "success"}, nil
}

type stubReceipts struct {
	mu    sync.Mutex
	next  int
	fixed string
}

func (r *stubReceipts) Next(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fixed != "" {
		return r.fixed, nil
	}
	r.next++
	return time.Now().Format("PAY-060102-") + padSeq(r.next), nil
}

func padSeq(n int) string {
	digits := []byte{'0', '0', '0', '0'}
	for i := 3; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}

type stubGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *stubGuard) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *stubGuard) Del(ctx context.Context, keys ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range keys {
		delete(g.seen, key)
	}
	return nil
}

func (g *stubGuard) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

type paymentsFixture struct {
	svc      Service
	db       *gorm.DB
	repo     Repository
	orders   orders.Repository
	wallet   *stubWallet
	gateway  *stubGateway
	receipts *stubReceipts
	outbox   *recordingOutbox
}

func newPaymentsFixture(t *testing.T, balances map[string]int64) *paymentsFixture {
	t.Helper()
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ordersRepo := orders.NewRepository(db)
	wallet := newStubWallet(balances)
	gateway := &stubGateway{}
	receipts := &stubReceipts{}
	ob := &recordingOutbox{}

	svc, err := NewService(repo, ordersRepo, wallet, gateway, receipts, gormTxRunner{db: db}, ob, &stubGuard{}, nil, nil, Options{
		CallbackURL: "https://api.example.com/webhooks/payme",
	})
	require.NoError(t, err)

	return &paymentsFixture{
		svc:      svc,
		db:       db,
		repo:     repo,
		orders:   ordersRepo,
		wallet:   wallet,
		gateway:  gateway,
		receipts: receipts,
		outbox:   ob,
	}
}

func (f *paymentsFixture) createOrder(t *testing.T, status enums.OrderStatus, totalCents int64) *models.Order {
	t.Helper()
	order, err := f.orders.Create(context.Background(), &models.Order{
		ClientID:   uuid.New(),
		IsTakeaway: true,
		Status:     status,
		TotalCents: totalCents,
	})
	require.NoError(t, err)
	return order
}

func (f *paymentsFixture) orderStatus(t *testing.T, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	return order.Status
}

func cashInput(orderID uuid.UUID, received int64) SettleInput {
	return SettleInput{
		OrderID:             orderID,
		Method:              enums.PaymentMethodCash,
		AmountReceivedCents: received,
		CashierUserID:       uuid.New(),
		ActorRole:           enums.RoleCashier,
	}
}

func TestSettleCashComputesChange(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	order := f.createOrder(t, enums.OrderStatusServed, 450000)

	payment, err := f.svc.Settle(context.Background(), cashInput(order.ID, 500000))
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, int64(450000), payment.AmountCents)
	require.NotNil(t, payment.Details)
	assert.Equal(t, int64(500000), payment.Details.AmountReceivedCents)
	assert.Equal(t, int64(50000), payment.Details.ChangeCents)
	assert.Regexp(t, `^PAY-\d{6}-\d{4}$`, payment.ReceiptNumber)

	assert.Equal(t, enums.OrderStatusPaid, f.orderStatus(t, order.ID))
	assert.True(t, f.outbox.has(enums.EventOrderPaid))
}

func TestSettleCashRejectsShortAmount(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	order := f.createOrder(t, enums.OrderStatusServed, 450000)

	_, err := f.svc.Settle(context.Background(), cashInput(order.ID, 400000))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))

	assert.Equal(t, enums.OrderStatusServed, f.orderStatus(t, order.ID))
	rows, err := f.svc.ListForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSettleRequiresServedOrder(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	order := f.createOrder(t, enums.OrderStatusPending, 100000)

	_, err := f.svc.Settle(context.Background(), cashInput(order.ID, 100000))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestSettleRequiresCashier(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	order := f.createOrder(t, enums.OrderStatusServed, 100000)

	input := cashInput(order.ID, 100000)
	input.ActorRole = enums.RoleWaiter
	_, err := f.svc.Settle(context.Background(), input)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestSettleTwiceConflicts(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	order := f.createOrder(t, enums.OrderStatusServed, 100000)
	ctx := context.Background()

	_, err := f.svc.Settle(ctx, cashInput(order.ID, 100000))
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, cashInput(order.ID, 100000))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestSettleCardRecordsBalances(t *testing.T) {
	f := newPaymentsFixture(t, map[string]int64{"04A1B2C3": 1000000})
	order := f.createOrder(t, enums.OrderStatusServed, 300000)

	payment, err := f.svc.Settle(context.Background(), SettleInput{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodCard,
		CardUID:       "04A1B2C3",
		CashierUserID: uuid.New(),
		ActorRole:     enums.RoleCashier,
	})
	require.NoError(t, err)

	require.NotNil(t, payment.Details)
	assert.Equal(t, "04A1B2C3", payment.Details.CardUID)
	require.NotNil(t, payment.Details.BalanceBeforeCents)
	require.NotNil(t, payment.Details.BalanceAfterCents)
	assert.Equal(t, int64(1000000), *payment.Details.BalanceBeforeCents)
	assert.Equal(t, int64(700000), *payment.Details.BalanceAfterCents)

	require.Len(t, f.wallet.debits, 1)
	assert.Equal(t, order.ID, *f.wallet.debits[0].OrderID)
	assert.Equal(t, enums.OrderStatusPaid, f.orderStatus(t, order.ID))
}

func TestSettleCardInsufficientBalance(t *testing.T) {
	f := newPaymentsFixture(t, map[string]int64{"04A1B2C3": 100000})
	order := f.createOrder(t, enums.OrderStatusServed, 300000)

	_, err := f.svc.Settle(context.Background(), SettleInput{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodCard,
		CardUID:       "04A1B2C3",
		CashierUserID: uuid.New(),
		ActorRole:     enums.RoleCashier,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))

	assert.Equal(t, enums.OrderStatusServed, f.orderStatus(t, order.ID))
	rows, err := f.svc.ListForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSettleMobileGatewayFailureLeavesOrderUntouched(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	f.gateway.chargeFn = func(ctx context.Context, req payme.ChargeRequest) (*payme.ChargeResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeExternalPayment, "gateway declined the charge")
	}
	order := f.createOrder(t, enums.OrderStatusServed, 200000)

	_, err := f.svc.Settle(context.Background(), SettleInput{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodMobile,
		Phone:         "+2250700000001",
		CashierUserID: uuid.New(),
		ActorRole:     enums.RoleCashier,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeExternalPayment))

	assert.Equal(t, enums.OrderStatusServed, f.orderStatus(t, order.ID))
	rows, err := f.svc.ListForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSettleMobileRecordsTransaction(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	f.gateway.chargeFn = func(ctx context.Context, req payme.ChargeRequest) (*payme.ChargeResult, error) {
		return &payme.ChargeResult{TransactionID: "tx-123", Status: "success"}, nil
	}
	order := f.createOrder(t, enums.OrderStatusServed, 200000)

	payment, err := f.svc.Settle(context.Background(), SettleInput{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodMobile,
		Phone:         "+2250700000001",
		CashierUserID: uuid.New(),
		ActorRole:     enums.RoleCashier,
	})
	require.NoError(t, err)

	require.NotNil(t, payment.TransactionID)
	assert.Equal(t, "tx-123", *payment.TransactionID)
	require.NotNil(t, payment.Details)
	assert.Equal(t, "+2250700000001", payment.Details.Phone)
	assert.Equal(t, "payme", payment.Details.Provider)
	assert.Equal(t, enums.OrderStatusPaid, f.orderStatus(t, order.ID))

	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, order.ID.String(), f.gateway.requests[0].OrderID)
	assert.Equal(t, int64(200000), f.gateway.requests[0].AmountCents)
	assert.Equal(t, "https://api.example.com/webhooks/payme", f.gateway.requests[0].CallbackURL)
}

func TestSettleMobileFinalizeFailureFlagsReconciliation(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	ctx := context.Background()

	// occupy the receipt the next settlement will try to use
	other := f.createOrder(t, enums.OrderStatusPaid, 100000)
	_, err := f.repo.Create(ctx, &models.Payment{
		OrderID:       other.ID,
		Method:        enums.PaymentMethodCash,
		Status:        enums.PaymentStatusCompleted,
		AmountCents:   100000,
		ReceiptNumber: "PAY-DUP-0001",
		ProcessedAt:   time.Now(),
	})
	require.NoError(t, err)
	f.receipts.fixed = "PAY-DUP-0001"

	order := f.createOrder(t, enums.OrderStatusServed, 200000)
	_, err = f.svc.Settle(ctx, SettleInput{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodMobile,
		Phone:         "+2250700000001",
		CashierUserID: uuid.New(),
		ActorRole:     enums.RoleCashier,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeReconciliation))
	assert.True(t, f.outbox.has(enums.EventPaymentReconciliation))
	assert.Equal(t, enums.OrderStatusServed, f.orderStatus(t, order.ID))
}

func TestConfirmExternalPaymentIsIdempotent(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	ctx := context.Background()

	order := f.createOrder(t, enums.OrderStatusPaid, 200000)
	txID := "tx-confirm-1"
	created, err := f.repo.Create(ctx, &models.Payment{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodMobile,
		Status:        enums.PaymentStatusPending,
		AmountCents:   200000,
		ReceiptNumber: "PAY-260901-0101",
		TransactionID: &txID,
		ProcessedAt:   time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.ConfirmExternalPayment(ctx, txID, "success"))
	payment, err := f.repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.ConfirmedAt)

	// duplicate delivery is a no-op
	require.NoError(t, f.svc.ConfirmExternalPayment(ctx, txID, "success"))
}

func TestConfirmFailureOnSettledPaymentFlagsReconciliation(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	ctx := context.Background()

	order := f.createOrder(t, enums.OrderStatusPaid, 200000)
	txID := "tx-reversal-1"
	created, err := f.repo.Create(ctx, &models.Payment{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodMobile,
		Status:        enums.PaymentStatusCompleted,
		AmountCents:   200000,
		ReceiptNumber: "PAY-260901-0102",
		TransactionID: &txID,
		ProcessedAt:   time.Now(),
	})
	require.NoError(t, err)

	err = f.svc.ConfirmExternalPayment(ctx, txID, "failed")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeReconciliation))
	assert.True(t, f.outbox.has(enums.EventPaymentReconciliation))

	payment, err := f.repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)

	// the reconciliation is recorded, so a redelivery is a no-op and
	// does not flag a second time
	require.NoError(t, f.svc.ConfirmExternalPayment(ctx, txID, "failed"))
	assert.Equal(t, 1, f.outbox.count(enums.EventPaymentReconciliation))
}

func TestConfirmReleasesDedupeKeyOnFailure(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	ctx := context.Background()
	txID := "tx-late-1"

	// first delivery races ahead of the local payment row
	err := f.svc.ConfirmExternalPayment(ctx, txID, "success")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	order := f.createOrder(t, enums.OrderStatusPaid, 200000)
	created, err := f.repo.Create(ctx, &models.Payment{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodMobile,
		Status:        enums.PaymentStatusPending,
		AmountCents:   200000,
		ReceiptNumber: "PAY-260901-0106",
		TransactionID: &txID,
		ProcessedAt:   time.Now(),
	})
	require.NoError(t, err)

	// the gateway redelivers; the failed attempt must not have burned the key
	require.NoError(t, f.svc.ConfirmExternalPayment(ctx, txID, "success"))
	payment, err := f.repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
}

type traceRecorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *traceRecorder) add(step string) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
}

type tracingWallet struct {
	inner *stubWallet
	trace *traceRecorder
}

func (w *tracingWallet) Lock(uid string) func() {
	unlock := w.inner.Lock(uid)
	w.trace.add("lock")
	return func() {
		w.trace.add("unlock")
		unlock()
	}
}

func (w *tracingWallet) Debit(ctx context.Context, tx *gorm.DB, input cards.MutationInput) (*cards.MutationResult, error) {
	w.trace.add("debit")
	return w.inner.Debit(ctx, tx, input)
}

func (w *tracingWallet) Credit(ctx context.Context, tx *gorm.DB, input cards.MutationInput) (*cards.MutationResult, error) {
	return w.inner.Credit(ctx, tx, input)
}

type tracingRunner struct {
	inner gormTxRunner
	trace *traceRecorder
}

func (r tracingRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := r.inner.WithTx(ctx, fn)
	if err == nil {
		r.trace.add("commit")
	}
	return err
}

func TestSettleCardHoldsCardLockUntilCommit(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ordersRepo := orders.NewRepository(db)
	trace := &traceRecorder{}
	wallet := &tracingWallet{inner: newStubWallet(map[string]int64{"04A1B2C3": 500000}), trace: trace}

	svc, err := NewService(repo, ordersRepo, wallet, &stubGateway{}, &stubReceipts{},
		tracingRunner{inner: gormTxRunner{db: db}, trace: trace},
		&recordingOutbox{}, &stubGuard{}, nil, nil, Options{})
	require.NoError(t, err)

	ctx := context.Background()
	order, err := ordersRepo.Create(ctx, &models.Order{
		ClientID:   uuid.New(),
		IsTakeaway: true,
		Status:     enums.OrderStatusServed,
		TotalCents: 300000,
	})
	require.NoError(t, err)

	_, err = svc.Settle(ctx, SettleInput{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodCard,
		CardUID:       "04A1B2C3",
		CashierUserID: uuid.New(),
		ActorRole:     enums.RoleCashier,
	})
	require.NoError(t, err)

	// the card stays locked until the settlement transaction commits, so a
	// concurrent debit always reads the committed balance
	assert.Equal(t, []string{"lock", "debit", "commit", "unlock"}, trace.steps)
}

func TestRefundPartialThenFull(t *testing.T) {
	f := newPaymentsFixture(t, map[string]int64{"04A1B2C3": 700000})
	ctx := context.Background()

	order := f.createOrder(t, enums.OrderStatusPaid, 300000)
	before := int64(1000000)
	after := int64(700000)
	created, err := f.repo.Create(ctx, &models.Payment{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodCard,
		Status:        enums.PaymentStatusCompleted,
		AmountCents:   300000,
		ReceiptNumber: "PAY-260901-0103",
		Details: &types.PaymentDetails{
			CardUID:            "04A1B2C3",
			BalanceBeforeCents: &before,
			BalanceAfterCents:  &after,
		},
		ProcessedAt: time.Now(),
	})
	require.NoError(t, err)

	actor := uuid.New()
	payment, err := f.svc.Refund(ctx, RefundInput{
		PaymentID:   created.ID,
		AmountCents: 100000,
		Reason:      "cold dish",
		ActorUserID: actor,
		ActorRole:   enums.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, payment.Status)
	assert.Equal(t, int64(100000), payment.RefundedAmountCents)
	require.Len(t, f.wallet.credits, 1)
	assert.Equal(t, int64(100000), f.wallet.credits[0].AmountCents)
	assert.True(t, f.outbox.has(enums.EventPaymentRefunded))

	payment, err = f.svc.Refund(ctx, RefundInput{
		PaymentID:   created.ID,
		AmountCents: 200000,
		Reason:      "order voided",
		ActorUserID: actor,
		ActorRole:   enums.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, payment.Status)
	assert.Equal(t, int64(300000), payment.RefundedAmountCents)
	assert.Equal(t, int64(1000000), f.wallet.balances["04A1B2C3"])
}

func TestRefundCannotExceedCharge(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	ctx := context.Background()

	order := f.createOrder(t, enums.OrderStatusPaid, 300000)
	created, err := f.repo.Create(ctx, &models.Payment{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodCash,
		Status:        enums.PaymentStatusCompleted,
		AmountCents:   300000,
		ReceiptNumber: "PAY-260901-0104",
		ProcessedAt:   time.Now(),
	})
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, RefundInput{
		PaymentID:   created.ID,
		AmountCents: 400000,
		Reason:      "oops",
		ActorUserID: uuid.New(),
		ActorRole:   enums.RoleAdmin,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestRefundRequiresCompletedPayment(t *testing.T) {
	f := newPaymentsFixture(t, nil)
	ctx := context.Background()

	order := f.createOrder(t, enums.OrderStatusServed, 300000)
	created, err := f.repo.Create(ctx, &models.Payment{
		OrderID:       order.ID,
		Method:        enums.PaymentMethodMobile,
		Status:        enums.PaymentStatusFailed,
		AmountCents:   300000,
		ReceiptNumber: "PAY-260901-0105",
		ProcessedAt:   time.Now(),
	})
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, RefundInput{
		PaymentID:   created.ID,
		AmountCents: 100000,
		Reason:      "nope",
		ActorUserID: uuid.New(),
		ActorRole:   enums.RoleAdmin,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}
