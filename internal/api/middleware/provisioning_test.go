package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestProvisioningSecret(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		wantCode   int
	}{
		{"matching secret", "s3cret", "Bearer s3cret", http.StatusOK},
		{"wrong secret", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"prefix of secret", "s3cret", "Bearer s3c", http.StatusUnauthorized},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Token s3cret", http.StatusUnauthorized},
		{"unconfigured secret fails closed", "", "Bearer ", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/provisioning/create-user", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			_ = ProvisioningSecret(tc.configured)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})(c)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
		})
	}
}
