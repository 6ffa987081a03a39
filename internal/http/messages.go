package http

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/service/relay"
)

type enqueueReq struct {
	Kind       string          `json:"kind"`
	Parameters json.RawMessage `json:"parameters"`
}

// enqueueMessageHandler is the producer boundary for deferred notifications
// (e.g. BOX_SERVICES_REQUEST raised by ops tooling).
func enqueueMessageHandler(relaySvc *relay.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req enqueueReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		kind, ok := model.ParseMessageKind(req.Kind)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid kind"})
		}

		if len(req.Parameters) > 0 && !json.Valid(req.Parameters) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "parameters must be valid JSON"})
		}

		m, err := relaySvc.EnqueueOutbound(c.Request().Context(), kind, req.Parameters)
		if err != nil {
			log.Errorf("enqueue outbound failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"enqueued": true,
			"id":       m.ID,
			"kind":     m.Kind.String(),
		})
	}
}
