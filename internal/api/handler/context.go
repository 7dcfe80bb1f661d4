package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/api/middleware"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

// ctxIdentity returns the identity admitted by the Gate. Its absence means
// the route was mounted outside a protected prefix.
func ctxIdentity(c echo.Context) (*domain.Identity, error) {
	identity := middleware.IdentityFrom(c)
	if identity == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authenticated identity")
	}
	return identity, nil
}
