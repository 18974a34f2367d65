package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maquis-app/maquis-backend/pkg/migrate"
)

func TestCardsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_cards.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no cards migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS cards",
		"balance_sealed BYTEA NOT NULL",
		"version BIGINT NOT NULL DEFAULT 0",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_cards_uid ON cards (uid)",
		"FOREIGN KEY (card_id) REFERENCES cards(id) ON DELETE CASCADE",
		"CHECK (amount_cents > 0)",
		"DROP TABLE IF EXISTS cards",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentsMigrationKeepsReceiptsUnique(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_payments.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no payments migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_receipt_number",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_transaction_id ON payments (transaction_id) WHERE transaction_id IS NOT NULL",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirIsWellFormed(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
