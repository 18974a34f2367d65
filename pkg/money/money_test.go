package money

import (
	"errors"
	"math"
	"testing"
)

func TestFromCentsRejectsNegative(t *testing.T) {
	if _, err := FromCents(-1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestSubNeverGoesNegative(t *testing.T) {
	a := MustFromCents(2000)
	b := MustFromCents(2500)

	if _, err := a.Sub(b); !errors.Is(err, ErrNegativeResult) {
		t.Fatalf("err = %v, want ErrNegativeResult", err)
	}
	// a is unchanged, values are immutable
	if a.Cents() != 2000 {
		t.Fatalf("a mutated to %d", a.Cents())
	}

	got, err := b.Sub(a)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if got.Cents() != 500 {
		t.Fatalf("b-a = %d, want 500", got.Cents())
	}
}

func TestSubToExactlyZero(t *testing.T) {
	a := MustFromCents(2500)
	got, err := a.Sub(MustFromCents(2500))
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("result = %d, want 0", got.Cents())
	}
}

func TestAddOverflow(t *testing.T) {
	a := MustFromCents(math.MaxInt64)
	if _, err := a.Add(MustFromCents(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("err = %v, want ErrOverflow", err)
	}
}

func TestMulQty(t *testing.T) {
	price := MustFromCents(1250)
	total, err := price.MulQty(3)
	if err != nil {
		t.Fatalf("MulQty: %v", err)
	}
	if total.Cents() != 3750 {
		t.Fatalf("total = %d, want 3750", total.Cents())
	}

	if _, err := MustFromCents(math.MaxInt64).MulQty(2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("err = %v, want ErrOverflow", err)
	}
}

func TestDisplayFixedPrecision(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{250000, "2500.00"},
		{199999, "1999.99"},
	}
	for _, tc := range tests {
		if got := MustFromCents(tc.cents).Display(); got != tc.want {
			t.Errorf("Display(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

func TestCmp(t *testing.T) {
	a, b := MustFromCents(100), MustFromCents(200)
	if a.Cmp(b) != -1 || b.Cmp(a) != 1 || a.Cmp(a) != 0 {
		t.Fatal("Cmp ordering broken")
	}
	if !a.LessThan(b) || b.LessThan(a) {
		t.Fatal("LessThan ordering broken")
	}
}
