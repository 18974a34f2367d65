package types

// PaymentDetails is the method-specific part of a payment record, stored as
// jsonb. Only the fields for the payment's method are populated.
type PaymentDetails struct {
	// Cash.
	AmountReceivedCents int64 `json:"amount_received_cents,omitempty"`
	ChangeCents         int64 `json:"change_cents,omitempty"`

	// Mobile money.
	Phone    string `json:"phone,omitempty"`
	Provider string `json:"provider,omitempty"`

	// Prepaid card.
	CardUID            string `json:"card_uid,omitempty"`
	BalanceBeforeCents *int64 `json:"balance_before_cents,omitempty"`
	BalanceAfterCents  *int64 `json:"balance_after_cents,omitempty"`
}
