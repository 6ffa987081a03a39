package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/repository"
)

// MerchantFromCtx extracts the authenticated merchant set by APIKeyMiddleware.
func MerchantFromCtx(c echo.Context) (*model.Merchant, bool) {
	v := c.Get("merchant")
	m, ok := v.(*model.Merchant)
	return m, ok
}

// APIKeyMiddleware authenticates requests using the X-API-Key header.
// On success it stores the merchant in context and blocks suspended accounts.
func APIKeyMiddleware(merchants repository.MerchantsRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			m, err := merchants.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if m == nil || m.Status != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set("merchant", m)
			if m.RateLimitRPS != nil {
				c.Set("merchant_rps", *m.RateLimitRPS)
			}
			return next(c)
		}
	}
}
