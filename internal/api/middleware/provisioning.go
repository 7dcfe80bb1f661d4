package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/api/metrics"
)

// ProvisioningSecret admits only callers presenting the shared bearer secret.
// An empty configured secret rejects every request.
func ProvisioningSecret(secret string) echo.MiddlewareFunc {
	want := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := []byte(BearerToken(c.Request()))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				metrics.ProvisioningRequestsTotal.WithLabelValues("unauthorized").Inc()
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":  "unauthorized",
					"reason": "unauthorized",
				})
			}
			return next(c)
		}
	}
}
