package enums

import "fmt"

// CardTransactionType classifies entries in a card's ledger history.
type CardTransactionType string

const (
	CardTransactionRecharge CardTransactionType = "recharge"
	CardTransactionPurchase CardTransactionType = "purchase"
	CardTransactionRefund   CardTransactionType = "refund"
)

var validCardTransactionTypes = []CardTransactionType{
	CardTransactionRecharge,
	CardTransactionPurchase,
	CardTransactionRefund,
}

// IsValid reports whether the value is a known CardTransactionType.
func (c CardTransactionType) IsValid() bool {
	for _, candidate := range validCardTransactionTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCardTransactionType converts raw input into a CardTransactionType.
func ParseCardTransactionType(value string) (CardTransactionType, error) {
	for _, candidate := range validCardTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid card transaction type %q", value)
}
