package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/model"
)

// CHEventsRepository lists archived inbound events from ClickHouse (final view).
type CHEventsRepository interface {
	ListByMerchant(ctx context.Context, merchantID, eventType string, limit, offset int) ([]model.InboundEvent, error)
}

type chEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHEventsRepository(ch *sqlx.DB) CHEventsRepository {
	return &chEventsRepository{ch: ch}
}

func (r *chEventsRepository) ListByMerchant(ctx context.Context, merchantID, eventType string, limit, offset int) ([]model.InboundEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, shipment_id, event_type, new_status, merchant_id, related_shipment_id,
		       payload, processed, processed_at, process_success, process_message, process_result, created_at
		FROM shipment_relay.events_latest
		WHERE merchant_id = ?
	`
	args := []any{merchantID}

	if eventType != "" {
		q += " AND event_type = ?"
		args = append(args, eventType)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.InboundEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
