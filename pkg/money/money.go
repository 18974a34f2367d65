package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative monetary value held as integer minor units
// (centimes). All money arithmetic in the codebase goes through this type;
// nothing touches floating point.
type Amount struct {
	cents int64
}

var (
	// ErrNegativeResult is returned when a subtraction would go below zero.
	ErrNegativeResult = fmt.Errorf("money: operation would produce a negative amount")
	// ErrOverflow is returned when an operation exceeds the representable range.
	ErrOverflow = fmt.Errorf("money: amount overflow")
	// ErrInvalidAmount is returned when constructing from a negative count.
	ErrInvalidAmount = fmt.Errorf("money: amount must be non-negative")
)

// Zero is the zero amount.
var Zero = Amount{}

// FromCents builds an Amount from a minor-unit count.
func FromCents(cents int64) (Amount, error) {
	if cents < 0 {
		return Amount{}, ErrInvalidAmount
	}
	return Amount{cents: cents}, nil
}

// MustFromCents is FromCents for values known to be valid (tests, constants).
func MustFromCents(cents int64) Amount {
	a, err := FromCents(cents)
	if err != nil {
		panic(err)
	}
	return a
}

// Cents returns the minor-unit count.
func (a Amount) Cents() int64 {
	return a.cents
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.cents == 0
}

// Add returns a+b, failing on overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.cents > math.MaxInt64-b.cents {
		return Amount{}, ErrOverflow
	}
	return Amount{cents: a.cents + b.cents}, nil
}

// Sub returns a-b, failing when the result would be negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b.cents > a.cents {
		return Amount{}, ErrNegativeResult
	}
	return Amount{cents: a.cents - b.cents}, nil
}

// MulQty returns the amount multiplied by a line-item quantity.
func (a Amount) MulQty(qty int) (Amount, error) {
	if qty < 0 {
		return Amount{}, ErrInvalidAmount
	}
	if qty != 0 && a.cents > math.MaxInt64/int64(qty) {
		return Amount{}, ErrOverflow
	}
	return Amount{cents: a.cents * int64(qty)}, nil
}

// Cmp compares a and b: -1 if a<b, 0 if equal, 1 if a>b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.cents < b.cents:
		return -1
	case a.cents > b.cents:
		return 1
	default:
		return 0
	}
}

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.cents < b.cents
}

// Display formats the amount with fixed two-decimal precision.
func (a Amount) Display() string {
	return decimal.NewFromInt(a.cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// String implements fmt.Stringer.
func (a Amount) String() string {
	return a.Display()
}
