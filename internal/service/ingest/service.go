package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prepstream/shipment-relay/internal/metrics"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/repository"
	"github.com/prepstream/shipment-relay/internal/util"
	"go.uber.org/zap"
)

// ErrMalformedInput is returned when a webhook is missing required fields.
// It is surfaced to the sender, never silently dropped.
var ErrMalformedInput = errors.New("malformed webhook input")

// Result says how an ingested webhook was classified.
type Result string

const (
	AcceptedNew       Result = "accepted-new"
	AcceptedDuplicate Result = "accepted-duplicate"
)

// WebhookEvent is the wire shape accepted at the webhook boundary.
type WebhookEvent struct {
	ShipmentID        string          `json:"shipment_id"`
	EventType         string          `json:"event_type"`
	NewStatus         string          `json:"new_status"`
	MerchantID        string          `json:"merchant_id"`
	RelatedShipmentID string          `json:"related_shipment_id,omitempty"`
	Payload           json.RawMessage `json:"payload"`
}

// Gate shields the store from duplicate webhook deliveries. Senders retry
// without exactly-once guarantees, so the same logical event arriving twice
// must be a no-op.
type Gate struct {
	events repository.EventsRepository
	log    *zap.Logger
}

func New(events repository.EventsRepository, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{events: events, log: log}
}

// Ingest validates and stores a webhook event. Deduplication rides on the
// natural-key uniqueness constraint, not a read-then-write check: insert
// first, and on a duplicate-key violation return the existing row unchanged.
func (g *Gate) Ingest(ctx context.Context, in WebhookEvent) (*model.InboundEvent, Result, error) {
	if err := validate(&in); err != nil {
		metrics.EventsIngested.WithLabelValues("rejected-malformed").Inc()
		return nil, "", err
	}

	ev := model.InboundEvent{
		ID:         util.New(),
		ShipmentID: in.ShipmentID,
		EventType:  in.EventType,
		NewStatus:  in.NewStatus,
		MerchantID: in.MerchantID,
		Payload:    in.Payload,
	}
	if in.RelatedShipmentID != "" {
		ev.RelatedShipmentID.String = in.RelatedShipmentID
		ev.RelatedShipmentID.Valid = true
	}

	err := g.events.Insert(ctx, nil, ev)
	if err == nil {
		metrics.EventsIngested.WithLabelValues("accepted-new").Inc()
		return &ev, AcceptedNew, nil
	}
	if !errors.Is(err, repository.ErrDuplicateEvent) {
		return nil, "", fmt.Errorf("ingest insert: %w", err)
	}

	existing, err := g.events.GetByNaturalKey(ctx, ev.NaturalKey())
	if err != nil {
		return nil, "", fmt.Errorf("ingest duplicate lookup: %w", err)
	}

	// First write wins. A redelivery carrying a different payload is
	// discarded, but loudly: a sender mutating a logical event is a bug
	// on their side worth noticing.
	if !jsonEqual(existing.Payload, ev.Payload) {
		g.log.Warn("duplicate webhook with diverging payload discarded",
			zap.String("event_id", existing.ID),
			zap.String("shipment_id", ev.ShipmentID),
			zap.String("event_type", ev.EventType),
			zap.String("new_status", ev.NewStatus),
			zap.String("merchant_id", ev.MerchantID))
	}

	metrics.EventsIngested.WithLabelValues("accepted-duplicate").Inc()
	return existing, AcceptedDuplicate, nil
}

func validate(in *WebhookEvent) error {
	in.ShipmentID = strings.TrimSpace(in.ShipmentID)
	in.EventType = strings.TrimSpace(in.EventType)
	in.NewStatus = strings.TrimSpace(in.NewStatus)
	in.MerchantID = strings.TrimSpace(in.MerchantID)
	in.RelatedShipmentID = strings.TrimSpace(in.RelatedShipmentID)

	switch {
	case in.ShipmentID == "":
		return fmt.Errorf("%w: shipment_id is required", ErrMalformedInput)
	case in.EventType == "":
		return fmt.Errorf("%w: event_type is required", ErrMalformedInput)
	case in.NewStatus == "":
		return fmt.Errorf("%w: new_status is required", ErrMalformedInput)
	case in.MerchantID == "":
		return fmt.Errorf("%w: merchant_id is required", ErrMalformedInput)
	}

	if len(in.Payload) > 0 && !json.Valid(in.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrMalformedInput)
	}
	if len(in.Payload) == 0 {
		in.Payload = json.RawMessage(`{}`)
	}
	return nil
}

func jsonEqual(a, b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
}
