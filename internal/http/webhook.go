package http

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/prepstream/shipment-relay/internal/http/middleware"
	"github.com/prepstream/shipment-relay/internal/service/ingest"
)

func shipmentWebhookHandler(gate *ingest.Gate) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ingest.WebhookEvent
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		merchant, ok := middleware.MerchantFromCtx(c)
		if !ok || merchant == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		// the sender's identity wins over whatever the body claims
		if req.MerchantID == "" {
			req.MerchantID = merchant.ExternalID
		} else if req.MerchantID != merchant.ExternalID {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "merchant_id mismatch"})
		}

		ev, result, err := gate.Ingest(c.Request().Context(), req)
		if err != nil {
			if errors.Is(err, ingest.ErrMalformedInput) {
				return c.JSON(http.StatusBadRequest, map[string]string{
					"error":  "rejected-malformed",
					"detail": err.Error(),
				})
			}

			log.Errorf("ingest failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		status := http.StatusCreated
		if result == ingest.AcceptedDuplicate {
			status = http.StatusOK
		}

		return c.JSON(status, map[string]any{
			"result":      string(result),
			"event_id":    ev.ID,
			"shipment_id": ev.ShipmentID,
		})
	}
}
