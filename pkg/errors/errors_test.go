package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataFor(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{CodeValidation, http.StatusBadRequest, false},
		{CodeStateConflict, http.StatusUnprocessableEntity, false},
		{CodeInsufficientFunds, http.StatusPaymentRequired, false},
		{CodeExternalPayment, http.StatusBadGateway, true},
		{CodeReconciliation, http.StatusInternalServerError, false},
		{Code("unknown"), http.StatusInternalServerError, true},
	}
	for _, tc := range tests {
		meta := MetadataFor(tc.code)
		if meta.HTTPStatus != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.code, meta.HTTPStatus, tc.status)
		}
		if meta.Retryable != tc.retryable {
			t.Errorf("%s: retryable = %v, want %v", tc.code, meta.Retryable, tc.retryable)
		}
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("db down")
	err := Wrap(CodeDependency, cause, "load card")

	if !stdErrors.Is(err, cause) {
		t.Fatal("wrapped error should match its cause")
	}
	if err.Error() != "DEPENDENCY_ERROR: load card" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestAsThroughWrapping(t *testing.T) {
	inner := New(CodeInsufficientFunds, "balance too low").WithDetails(map[string]any{"balance": 2000})
	outer := fmt.Errorf("settle: %w", inner)

	typed := As(outer)
	if typed == nil {
		t.Fatal("expected typed error through fmt wrapping")
	}
	if typed.Code() != CodeInsufficientFunds {
		t.Fatalf("code = %s", typed.Code())
	}
	if !HasCode(outer, CodeInsufficientFunds) {
		t.Fatal("HasCode should see through wrapping")
	}
	if HasCode(outer, CodeStateConflict) {
		t.Fatal("HasCode matched the wrong code")
	}
}

func TestDumpCarriesTaxonomy(t *testing.T) {
	cause := stdErrors.New("row locked")
	err := Wrap(CodeConflict, cause, "debit card")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("dump code = %s", d.Code)
	}
	if d.HTTPStatus != http.StatusConflict {
		t.Fatalf("dump status = %d", d.HTTPStatus)
	}
	if d.Retryable {
		t.Fatal("conflicts are not retryable")
	}
	if len(d.Chain) != 1 {
		t.Fatalf("chain length = %d, want 1", len(d.Chain))
	}
	if d.Postgres != nil {
		t.Fatal("no postgres detail expected")
	}
}

func TestDumpFields(t *testing.T) {
	d := Dump(New(CodeNotFound, "card not found"))

	fields := d.Fields()
	if fields["error_code"] != string(CodeNotFound) {
		t.Fatalf("error_code = %v", fields["error_code"])
	}
	if fields["http_status"] != http.StatusNotFound {
		t.Fatalf("http_status = %v", fields["http_status"])
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatal("pg fields should be absent without a driver error")
	}
}

func TestDumpDefaultsUntypedErrors(t *testing.T) {
	d := Dump(stdErrors.New("boom"))
	if d.Code != CodeInternal {
		t.Fatalf("dump code = %s", d.Code)
	}
	if d.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("dump status = %d", d.HTTPStatus)
	}
}
