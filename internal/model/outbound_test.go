package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMessageKind(t *testing.T) {
	k, ok := ParseMessageKind("  chat_notification ")
	assert.True(t, ok)
	assert.Equal(t, KindChatNotification, k)

	_, ok = ParseMessageKind("UNSOLICITED_FAX")
	assert.False(t, ok)
}

func TestMessageKindTopicLanes(t *testing.T) {
	// chat traffic goes to its own lane, everything else to ops
	assert.Equal(t, ChatNotificationsTopic, KindChatNotification.Topic())
	assert.Equal(t, ChatNotificationsTopic, KindOutboundWithoutInbound.Topic())
	assert.Equal(t, OpsNotificationsTopic, KindBoxServicesRequest.Topic())
	assert.Equal(t, OpsNotificationsTopic, KindResidualInboundError.Topic())
	assert.Equal(t, OpsNotificationsTopic, KindShipmentStatusAlert.Topic())
}

func TestNaturalKeyIgnoresPayload(t *testing.T) {
	a := InboundEvent{ShipmentID: "S1", EventType: EventTypeStatusChange, NewStatus: "closed", MerchantID: "M1", Payload: []byte(`{"a":1}`)}
	b := a
	b.Payload = []byte(`{"a":2}`)
	b.ID = "different"

	assert.Equal(t, a.NaturalKey(), b.NaturalKey())
}
