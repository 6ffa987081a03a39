package model

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Well-known inbound event types. The column itself is free-form so new
// webhook senders can be onboarded without a schema change.
const (
	EventTypeStatusChange    = "STATUS_CHANGE"
	EventTypeInboundReceived = "INBOUND_RECEIVED"
	EventTypeReturnCreated   = "RETURN_CREATED"
)

// InboundEvent is the DB entity persisted in the inbound_events table.
// Rows are append-only: the processing worker flips the processed fields
// exactly once and nothing ever deletes a row.
type InboundEvent struct {
	ID                string          `db:"id"`
	ShipmentID        string          `db:"shipment_id"`
	EventType         string          `db:"event_type"`
	NewStatus         string          `db:"new_status"`
	MerchantID        string          `db:"merchant_id"`
	RelatedShipmentID sql.NullString  `db:"related_shipment_id"`
	Payload           json.RawMessage `db:"payload"`
	Processed         bool            `db:"processed"`
	ProcessedAt       *time.Time      `db:"processed_at"`
	ProcessSuccess    sql.NullBool    `db:"process_success"`
	ProcessMessage    sql.NullString  `db:"process_message"`
	ProcessResult     json.RawMessage `db:"process_result"`
	CreatedAt         time.Time       `db:"created_at"`
}

// NaturalKey identifies a logical webhook event for deduplication.
// Two deliveries with the same key are the same event, whatever their payload.
type NaturalKey struct {
	ShipmentID string
	EventType  string
	NewStatus  string
	MerchantID string
}

func (e InboundEvent) NaturalKey() NaturalKey {
	return NaturalKey{
		ShipmentID: e.ShipmentID,
		EventType:  e.EventType,
		NewStatus:  e.NewStatus,
		MerchantID: e.MerchantID,
	}
}
