package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/prepstream/shipment-relay/internal/http/middleware"
	"github.com/prepstream/shipment-relay/internal/repository"
)

func listEventReportsHandler(chRepo repository.CHEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		merchant, ok := middleware.MerchantFromCtx(c)
		if !ok || merchant == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		eventType := strings.TrimSpace(c.QueryParam("event_type"))

		rows, err := chRepo.ListByMerchant(
			c.Request().Context(),
			merchant.ExternalID,
			eventType,
			limit,
			offset,
		)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		views := make([]eventView, 0, len(rows))
		for _, e := range rows {
			views = append(views, toEventView(e))
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(views),
			"results": views,
		})
	}
}
