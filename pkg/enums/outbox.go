package enums

import "fmt"

// OutboxEventType enumerates the domain events written to outbox_events.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order.created"
	EventOrderCancelled        OutboxEventType = "order.cancelled"
	EventOrderPaid             OutboxEventType = "order.paid"
	EventCardDebited           OutboxEventType = "card.debited"
	EventCardCredited          OutboxEventType = "card.credited"
	EventPaymentRefunded       OutboxEventType = "payment.refunded"
	EventPaymentReconciliation OutboxEventType = "payment.reconciliation_flagged"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderCancelled,
	EventOrderPaid,
	EventCardDebited,
	EventCardCredited,
	EventPaymentRefunded,
	EventPaymentReconciliation,
}

// IsValid reports whether the value is a known OutboxEventType.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateCard    OutboxAggregateType = "card"
	AggregatePayment OutboxAggregateType = "payment"
)

// IsValid reports whether the value is a known OutboxAggregateType.
func (t OutboxAggregateType) IsValid() bool {
	switch t {
	case AggregateOrder, AggregateCard, AggregatePayment:
		return true
	default:
		return false
	}
}
