package model

import (
	"encoding/json"
	"strings"
	"time"
)

type MessageKind string

const (
	KindOutboundWithoutInbound MessageKind = "OUTBOUND_WITHOUT_INBOUND"
	KindBoxServicesRequest     MessageKind = "BOX_SERVICES_REQUEST"
	KindResidualInboundError   MessageKind = "RESIDUAL_INBOUND_ERROR"
	KindChatNotification       MessageKind = "CHAT_NOTIFICATION"
	KindShipmentStatusAlert    MessageKind = "SHIPMENT_STATUS_ALERT"
)

func (k MessageKind) String() string { return string(k) }

func (k MessageKind) Valid() bool {
	switch k {
	case KindOutboundWithoutInbound, KindBoxServicesRequest, KindResidualInboundError,
		KindChatNotification, KindShipmentStatusAlert:
		return true
	default:
		return false
	}
}

// ParseMessageKind normalizes input. Returns (value, true) if valid;
// otherwise (zero, false).
func ParseMessageKind(s string) (MessageKind, bool) {
	k := MessageKind(strings.ToUpper(strings.TrimSpace(s)))
	if k.Valid() {
		return k, true
	}
	return "", false
}

type DeliveryStatus string

const (
	DeliveryPending       DeliveryStatus = "pending"
	DeliveryDelivered     DeliveryStatus = "delivered"
	DeliveryUndeliverable DeliveryStatus = "undeliverable"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) Valid() bool {
	return s == DeliveryPending || s == DeliveryDelivered || s == DeliveryUndeliverable
}

// OutboundMessage is the DB entity persisted in the outbound_messages table.
// A message is claimed (consumed) at most once; delivery status is reported
// back by the notifier after the claim.
type OutboundMessage struct {
	ID             string          `db:"id"`
	Kind           MessageKind     `db:"kind"`
	Parameters     json.RawMessage `db:"parameters"`
	Consumed       bool            `db:"consumed"`
	ConsumedAt     *time.Time      `db:"consumed_at"`
	DeliveryStatus DeliveryStatus  `db:"delivery_status"`
	CreatedAt      time.Time       `db:"created_at"`
}

// Envelope is the payload published to Kafka for a claimed outbound message.
type Envelope struct {
	ID         string          `json:"id"` // outbound message ULID
	Kind       MessageKind     `json:"kind"`
	Parameters json.RawMessage `json:"parameters"`
}

// Topic maps a message kind to the Kafka topic it is dispatched on.
// Chat traffic gets its own lane so a flood of ops alerts cannot delay it.
func (k MessageKind) Topic() string {
	if k == KindChatNotification || k == KindOutboundWithoutInbound {
		return ChatNotificationsTopic
	}
	return OpsNotificationsTopic
}

const (
	ChatNotificationsTopic = "relay.notifications.chat"
	OpsNotificationsTopic  = "relay.notifications.ops"
)
