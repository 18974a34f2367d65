package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf})

	ctx := logg.WithOrderID(context.Background(), "ord-1")
	ctx = logg.WithCardUID(ctx, "A1B2C3D4")
	logg.Info(ctx, "settlement started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not json: %v", err)
	}
	if entry["order_id"] != "ord-1" {
		t.Errorf("order_id = %v", entry["order_id"])
	}
	if entry["card_uid"] != "A1B2C3D4" {
		t.Errorf("card_uid = %v", entry["card_uid"])
	}
	if entry["service"] != "test" {
		t.Errorf("service = %v", entry["service"])
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Error("debug should parse")
	}
	if ParseLevel("") != zerolog.InfoLevel {
		t.Error("empty should default to info")
	}
	if ParseLevel("nonsense") != zerolog.InfoLevel {
		t.Error("garbage should default to info")
	}
}
