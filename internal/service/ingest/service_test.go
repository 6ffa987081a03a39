package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memEvents mimics the natural-key uniqueness constraint in memory.
type memEvents struct {
	repository.EventsRepository

	byKey map[model.NaturalKey]*model.InboundEvent
}

func newMemEvents() *memEvents {
	return &memEvents{byKey: map[model.NaturalKey]*model.InboundEvent{}}
}

func (m *memEvents) Insert(_ context.Context, _ *sqlx.Tx, e model.InboundEvent) error {
	if _, ok := m.byKey[e.NaturalKey()]; ok {
		return repository.ErrDuplicateEvent
	}
	cp := e
	m.byKey[e.NaturalKey()] = &cp
	return nil
}

func (m *memEvents) GetByNaturalKey(_ context.Context, key model.NaturalKey) (*model.InboundEvent, error) {
	e, ok := m.byKey[key]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	return e, nil
}

func validWebhook() WebhookEvent {
	return WebhookEvent{
		ShipmentID: "SHP-100",
		EventType:  model.EventTypeStatusChange,
		NewStatus:  "closed",
		MerchantID: "M1",
		Payload:    json.RawMessage(`{"carrier":"dhl"}`),
	}
}

func TestIngestAcceptedNew(t *testing.T) {
	gate := New(newMemEvents(), nil)

	ev, res, err := gate.Ingest(context.Background(), validWebhook())

	require.NoError(t, err)
	assert.Equal(t, AcceptedNew, res)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "SHP-100", ev.ShipmentID)
	assert.False(t, ev.Processed)
}

func TestIngestDuplicateIsNoOp(t *testing.T) {
	store := newMemEvents()
	gate := New(store, nil)
	ctx := context.Background()

	first, res, err := gate.Ingest(ctx, validWebhook())
	require.NoError(t, err)
	require.Equal(t, AcceptedNew, res)

	second, res, err := gate.Ingest(ctx, validWebhook())
	require.NoError(t, err)
	assert.Equal(t, AcceptedDuplicate, res)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.byKey, 1)
}

func TestIngestDuplicateDivergingPayloadKeepsFirstWrite(t *testing.T) {
	store := newMemEvents()
	gate := New(store, nil)
	ctx := context.Background()

	first, _, err := gate.Ingest(ctx, validWebhook())
	require.NoError(t, err)

	in := validWebhook()
	in.Payload = json.RawMessage(`{"carrier":"ups"}`)
	second, res, err := gate.Ingest(ctx, in)

	require.NoError(t, err)
	assert.Equal(t, AcceptedDuplicate, res)
	assert.Equal(t, first.ID, second.ID)
	assert.JSONEq(t, `{"carrier":"dhl"}`, string(second.Payload))
}

func TestIngestDistinctKeysAreDistinctEvents(t *testing.T) {
	store := newMemEvents()
	gate := New(store, nil)
	ctx := context.Background()

	a, res, err := gate.Ingest(ctx, validWebhook())
	require.NoError(t, err)
	require.Equal(t, AcceptedNew, res)

	in := validWebhook()
	in.NewStatus = "cancelled" // different status, different logical event
	b, res, err := gate.Ingest(ctx, in)

	require.NoError(t, err)
	assert.Equal(t, AcceptedNew, res)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, store.byKey, 2)
}

func TestIngestValidation(t *testing.T) {
	gate := New(newMemEvents(), nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*WebhookEvent)
	}{
		{"missing shipment_id", func(in *WebhookEvent) { in.ShipmentID = "  " }},
		{"missing event_type", func(in *WebhookEvent) { in.EventType = "" }},
		{"missing new_status", func(in *WebhookEvent) { in.NewStatus = "" }},
		{"missing merchant_id", func(in *WebhookEvent) { in.MerchantID = "" }},
		{"invalid payload json", func(in *WebhookEvent) { in.Payload = json.RawMessage(`{broken`) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := validWebhook()
			tc.mutate(&in)

			_, _, err := gate.Ingest(ctx, in)

			assert.ErrorIs(t, err, ErrMalformedInput)
		})
	}
}

func TestIngestEmptyPayloadDefaultsToObject(t *testing.T) {
	gate := New(newMemEvents(), nil)

	in := validWebhook()
	in.Payload = nil
	ev, _, err := gate.Ingest(context.Background(), in)

	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(ev.Payload))
}

func TestIngestRelatedShipmentIsOptional(t *testing.T) {
	gate := New(newMemEvents(), nil)

	in := validWebhook()
	in.EventType = model.EventTypeInboundReceived
	in.RelatedShipmentID = "SHP-99"
	ev, _, err := gate.Ingest(context.Background(), in)

	require.NoError(t, err)
	require.True(t, ev.RelatedShipmentID.Valid)
	assert.Equal(t, "SHP-99", ev.RelatedShipmentID.String)
}
