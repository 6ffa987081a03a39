package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/repository"
)

// eventView is the read-side JSON shape of an inbound event.
type eventView struct {
	ID                string          `json:"id"`
	ShipmentID        string          `json:"shipment_id"`
	EventType         string          `json:"event_type"`
	NewStatus         string          `json:"new_status"`
	MerchantID        string          `json:"merchant_id"`
	RelatedShipmentID string          `json:"related_shipment_id,omitempty"`
	Payload           json.RawMessage `json:"payload"`
	Processed         bool            `json:"processed"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
	ProcessSuccess    *bool           `json:"process_success,omitempty"`
	ProcessMessage    string          `json:"process_message,omitempty"`
	ProcessResult     json.RawMessage `json:"process_result,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func toEventView(e model.InboundEvent) eventView {
	v := eventView{
		ID:         e.ID,
		ShipmentID: e.ShipmentID,
		EventType:  e.EventType,
		NewStatus:  e.NewStatus,
		MerchantID: e.MerchantID,
		Payload:    e.Payload,
		Processed:  e.Processed,
		CreatedAt:  e.CreatedAt,
	}
	if e.RelatedShipmentID.Valid {
		v.RelatedShipmentID = e.RelatedShipmentID.String
	}
	v.ProcessedAt = e.ProcessedAt
	if e.ProcessSuccess.Valid {
		b := e.ProcessSuccess.Bool
		v.ProcessSuccess = &b
	}
	if e.ProcessMessage.Valid {
		v.ProcessMessage = e.ProcessMessage.String
	}
	v.ProcessResult = e.ProcessResult
	return v
}

func shipmentHistoryHandler(events repository.EventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		shipmentID := strings.TrimSpace(c.Param("shipment_id"))
		if shipmentID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "shipment_id is required"})
		}

		rows, err := events.HistoryFor(c.Request().Context(), shipmentID)
		if err != nil {
			c.Logger().Errorf("history query failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		views := make([]eventView, 0, len(rows))
		for _, e := range rows {
			views = append(views, toEventView(e))
		}

		return c.JSON(http.StatusOK, map[string]any{
			"shipment_id": shipmentID,
			"count":       len(views),
			"events":      views,
		})
	}
}
