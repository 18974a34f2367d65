package cards

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

	"github.com/maquis-app/maquis-backend/pkg/enums"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
	"github.com/maquis-app/maquis-backend/pkg/outbox"
	"github.com/maquis-app/maquis-backend/pkg/security"
)

func setupCardsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	cards := `
CREATE TABLE IF NOT EXISTS cards (
  id TEXT PRIMARY KEY,
  uid TEXT NOT NULL UNIQUE,
  client_id TEXT NOT NULL,
  balance_sealed BLOB NOT NULL,
  version INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  issued_at DATETIME NOT NULL,
  expires_at DATETIME NOT NULL,
  last_recharge_at DATETIME,
  last_recharge_cents INTEGER,
  deactivated_at DATETIME,
  deactivation_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	transactions := `
CREATE TABLE IF NOT EXISTS card_transactions (
  id TEXT PRIMARY KEY,
  card_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  order_id TEXT,
  actor_user_id TEXT,
  note TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(cards).Error)
	require.NoError(t, db.Exec(transactions).Error)

	// a single connection keeps every transaction on the same in-memory db
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

func testCipher(t *testing.T) *security.BalanceCipher {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	cipher, err := security.NewBalanceCipher(key)
	require.NoError(t, err)
	return cipher
}

func newCardService(t *testing.T) (Service, *gorm.DB, *recordingOutbox) {
	t.Helper()
	db := setupCardsTestDB(t)
	ob := &recordingOutbox{}
	svc, err := NewService(NewRepository(db), testCipher(t), gormTxRunner{db: db}, ob, 365*24*time.Hour)
	require.NoError(t, err)
	return svc, db, ob
}

func registerCard(t *testing.T, svc Service, uid string, cents int64) uuid.UUID {
	t.Helper()
	clientID := uuid.New()
	_, err := svc.Register(context.Background(), RegisterInput{
		UID:          uid,
		ClientID:     clientID,
		InitialCents: cents,
		ActorUserID:  uuid.New(),
		ActorRole:    enums.RoleCashier,
	})
	require.NoError(t, err)
	return clientID
}

func TestRegisterAndGetBalance(t *testing.T) {
	svc, _, _ := newCardService(t)
	registerCard(t, svc, "04A1B2C3", 500000)

	view, err := svc.GetBalance(context.Background(), "04A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, int64(500000), view.BalanceCents)
	assert.Equal(t, "5000.00", view.Display)
	assert.True(t, view.Active)
}

func TestRegisterRejectsBadUID(t *testing.T) {
	svc, _, _ := newCardService(t)
	_, err := svc.Register(context.Background(), RegisterInput{
		UID:         "xyz",
		ClientID:    uuid.New(),
		ActorUserID: uuid.New(),
		ActorRole:   enums.RoleCashier,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestRegisterRequiresStaff(t *testing.T) {
	svc, _, _ := newCardService(t)
	_, err := svc.Register(context.Background(), RegisterInput{
		UID:         "04A1B2C3",
		ClientID:    uuid.New(),
		ActorUserID: uuid.New(),
		ActorRole:   enums.RoleClient,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestDebitWritesHistoryAtomically(t *testing.T) {
	svc, db, ob := newCardService(t)
	registerCard(t, svc, "04A1B2C3", 1000000)
	ctx := context.Background()

	runner := gormTxRunner{db: db}
	orderID := uuid.New()
	var result *MutationResult
	err := runner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = svc.Debit(ctx, tx, MutationInput{
			UID:         "04A1B2C3",
			AmountCents: 300000,
			OrderID:     &orderID,
			ActorUserID: uuid.New(),
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), result.BalanceBeforeCents)
	assert.Equal(t, int64(700000), result.BalanceAfterCents)

	history, err := svc.History(ctx, "04A1B2C3", 10)
	require.NoError(t, err)
	require.Len(t, history, 2) // initial recharge + purchase
	types := []enums.CardTransactionType{history[0].Type, history[1].Type}
	assert.Contains(t, types, enums.CardTransactionPurchase)
	assert.Contains(t, types, enums.CardTransactionRecharge)

	found := false
	for _, event := range ob.events {
		if event.EventType == enums.EventCardDebited {
			found = true
		}
	}
	assert.True(t, found, "expected card.debited event")
}

func TestDebitInsufficientFundsLeavesBalanceUntouched(t *testing.T) {
	svc, db, _ := newCardService(t)
	registerCard(t, svc, "04A1B2C3", 200000)
	ctx := context.Background()

	runner := gormTxRunner{db: db}
	err := runner.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := svc.Debit(ctx, tx, MutationInput{
			UID:         "04A1B2C3",
			AmountCents: 300000,
			ActorUserID: uuid.New(),
		})
		return err
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))

	view, err := svc.GetBalance(ctx, "04A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, int64(200000), view.BalanceCents)

	history, err := svc.History(ctx, "04A1B2C3", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1) // only the initial recharge
}

func TestConcurrentDebitsNeverOverspend(t *testing.T) {
	svc, db, _ := newCardService(t)
	registerCard(t, svc, "04A1B2C3", 500000)
	ctx := context.Background()
	runner := gormTxRunner{db: db}

	// the lock is held until the transaction commits, so the loser reads the
	// committed balance and fails the sufficiency check, not the version CAS
	debit := func() error {
		unlock := svc.Lock("04A1B2C3")
		defer unlock()
		return runner.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := svc.Debit(ctx, tx, MutationInput{
				UID:         "04A1B2C3",
				AmountCents: 300000,
				ActorUserID: uuid.New(),
			})
			return err
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = debit()
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one debit should win")

	view, err := svc.GetBalance(ctx, "04A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, int64(200000), view.BalanceCents)
}

func TestRechargeUpdatesMetadata(t *testing.T) {
	svc, db, _ := newCardService(t)
	registerCard(t, svc, "04A1B2C3", 0)
	ctx := context.Background()

	result, err := svc.Recharge(ctx, MutationInput{
		UID:         "04A1B2C3",
		AmountCents: 1000000,
		ActorUserID: uuid.New(),
	}, enums.RoleCashier)
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), result.BalanceAfterCents)

	var lastRecharge *int64
	require.NoError(t, db.Raw("SELECT last_recharge_cents FROM cards WHERE uid = ?", "04A1B2C3").Scan(&lastRecharge).Error)
	require.NotNil(t, lastRecharge)
	assert.Equal(t, int64(1000000), *lastRecharge)
}

func TestRechargeForbiddenForKitchen(t *testing.T) {
	svc, _, _ := newCardService(t)
	registerCard(t, svc, "04A1B2C3", 0)

	_, err := svc.Recharge(context.Background(), MutationInput{
		UID:         "04A1B2C3",
		AmountCents: 1000,
		ActorUserID: uuid.New(),
	}, enums.RoleKitchen)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestDeactivatedCardRefusesDebit(t *testing.T) {
	svc, db, _ := newCardService(t)
	registerCard(t, svc, "04A1B2C3", 500000)
	ctx := context.Background()

	require.NoError(t, svc.Deactivate(ctx, "04A1B2C3", "lost card", enums.RoleAdmin))

	runner := gormTxRunner{db: db}
	err := runner.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := svc.Debit(ctx, tx, MutationInput{UID: "04A1B2C3", AmountCents: 1000, ActorUserID: uuid.New()})
		return err
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	// double deactivation is a state conflict too
	err = svc.Deactivate(ctx, "04A1B2C3", "again", enums.RoleAdmin)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestExpiredCardRefusesMutation(t *testing.T) {
	db := setupCardsTestDB(t)
	ob := &recordingOutbox{}
	svc, err := NewService(NewRepository(db), testCipher(t), gormTxRunner{db: db}, ob, time.Nanosecond)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Register(ctx, RegisterInput{
		UID:          "04A1B2C3",
		ClientID:     uuid.New(),
		InitialCents: 100000,
		ActorUserID:  uuid.New(),
		ActorRole:    enums.RoleCashier,
	})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	runner := gormTxRunner{db: db}
	err = runner.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := svc.Debit(ctx, tx, MutationInput{UID: "04A1B2C3", AmountCents: 1000, ActorUserID: uuid.New()})
		return err
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	verify, err := svc.Verify(ctx, "04A1B2C3")
	require.NoError(t, err)
	assert.False(t, verify.Valid)
	assert.Equal(t, "card expired", verify.Reason)
}

func TestVerifyUnknownCard(t *testing.T) {
	svc, _, _ := newCardService(t)
	verify, err := svc.Verify(context.Background(), "DEADBEEF")
	require.NoError(t, err)
	assert.False(t, verify.Valid)
	assert.Equal(t, "unknown card", verify.Reason)
}
