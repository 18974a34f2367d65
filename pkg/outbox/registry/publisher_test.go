package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maquis-app/maquis-backend/pkg/config"
	"github.com/maquis-app/maquis-backend/pkg/db/models"
	"github.com/maquis-app/maquis-backend/pkg/enums"
	"github.com/maquis-app/maquis-backend/pkg/outbox"
	"github.com/maquis-app/maquis-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "maquis-domain-events"})
	require.NoError(t, err)
	return reg
}

func envelopeFor(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       raw,
	})
	require.NoError(t, err)
	return payload
}

func TestResolveDecodesTypedPayload(t *testing.T) {
	reg := testRegistry(t)
	orderID := uuid.New()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: envelopeFor(t, payloads.OrderPaidEvent{
			OrderID:       orderID,
			PaymentID:     uuid.New(),
			Method:        enums.PaymentMethodCash,
			AmountCents:   150000,
			ReceiptNumber: "PAY-260901-0001",
			PaidAt:        time.Now(),
		}),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, "maquis-domain-events", resolved.Descriptor.Topic)

	paid, ok := resolved.Payload.(*payloads.OrderPaidEvent)
	require.True(t, ok)
	assert.Equal(t, orderID, paid.OrderID)
	assert.Equal(t, int64(150000), paid.AmountCents)
}

func TestResolveRejectsUnknownEventType(t *testing.T) {
	reg := testRegistry(t)
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.OutboxEventType("order.teleported"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopeFor(t, map[string]string{}),
	}

	_, err := reg.Resolve(event)
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestResolveRejectsAggregateMismatch(t *testing.T) {
	reg := testRegistry(t)
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCardDebited,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopeFor(t, payloads.CardDebitedEvent{}),
	}

	_, err := reg.Resolve(event)
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestResolveRejectsEmptyPayload(t *testing.T) {
	reg := testRegistry(t)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage("null"),
	})
	require.NoError(t, err)

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}

	_, resolveErr := reg.Resolve(event)
	require.Error(t, resolveErr)
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	require.Error(t, err)
}
