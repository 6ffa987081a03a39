package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/service/relay"
)

// terminalStatuses are shipment states worth an operator alert.
var terminalStatuses = map[string]bool{
	"closed":    true,
	"cancelled": true,
}

// NewStatusChangeProcessor handles STATUS_CHANGE events: it validates the
// transition and, for terminal states, enqueues a SHIPMENT_STATUS_ALERT.
// Re-running after a crash may enqueue the alert again; the outbound lane is
// at-least-once by contract.
func NewStatusChangeProcessor(relaySvc *relay.Service) Processor {
	return ProcessorFunc(func(ctx context.Context, ev model.InboundEvent) Outcome {
		if ev.NewStatus == "" {
			return Fatal("status change without new_status")
		}

		if terminalStatuses[ev.NewStatus] {
			params, err := json.Marshal(map[string]any{
				"shipment_id": ev.ShipmentID,
				"merchant_id": ev.MerchantID,
				"new_status":  ev.NewStatus,
				"event_id":    ev.ID,
			})
			if err != nil {
				return Fatal(fmt.Sprintf("marshal alert parameters: %v", err))
			}
			if _, err := relaySvc.EnqueueOutbound(ctx, model.KindShipmentStatusAlert, params); err != nil {
				// store hiccup: leave the row pending and try again later
				return Retryable(fmt.Sprintf("enqueue status alert: %v", err))
			}
		}

		result, err := json.Marshal(map[string]any{
			"shipment_id": ev.ShipmentID,
			"status":      ev.NewStatus,
			"alerted":     terminalStatuses[ev.NewStatus],
		})
		if err != nil {
			return Fatal(fmt.Sprintf("marshal result: %v", err))
		}
		return Success(result)
	})
}

// NewInboundReceivedProcessor handles INBOUND_RECEIVED events. A related
// shipment reference is required: a residual inbound with no outbound to
// attach to becomes a RESIDUAL_INBOUND_ERROR message for the ops queue.
func NewInboundReceivedProcessor(relaySvc *relay.Service) Processor {
	return ProcessorFunc(func(ctx context.Context, ev model.InboundEvent) Outcome {
		if !ev.RelatedShipmentID.Valid || ev.RelatedShipmentID.String == "" {
			params, err := json.Marshal(map[string]any{
				"shipment_id": ev.ShipmentID,
				"merchant_id": ev.MerchantID,
				"event_id":    ev.ID,
			})
			if err != nil {
				return Fatal(fmt.Sprintf("marshal residual parameters: %v", err))
			}
			if _, err := relaySvc.EnqueueOutbound(ctx, model.KindResidualInboundError, params); err != nil {
				return Retryable(fmt.Sprintf("enqueue residual error: %v", err))
			}
			return Fatal("inbound event has no related shipment")
		}

		result, err := json.Marshal(map[string]any{
			"shipment_id": ev.ShipmentID,
			"related_to":  ev.RelatedShipmentID.String,
		})
		if err != nil {
			return Fatal(fmt.Sprintf("marshal result: %v", err))
		}
		return Success(result)
	})
}

// DefaultProcessors wires the built-in event handlers.
func DefaultProcessors(relaySvc *relay.Service) map[string]Processor {
	return map[string]Processor{
		model.EventTypeStatusChange:    NewStatusChangeProcessor(relaySvc),
		model.EventTypeInboundReceived: NewInboundReceivedProcessor(relaySvc),
		model.EventTypeReturnCreated:   NewStatusChangeProcessor(relaySvc),
	}
}
