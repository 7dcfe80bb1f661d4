package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// DashboardHandler serves the protected landing routes.
type DashboardHandler struct{}

func NewDashboardHandler() *DashboardHandler {
	return &DashboardHandler{}
}

type dashboardResponse struct {
	User         *userSummary `json:"user"`
	Subscription string       `json:"subscription_status,omitempty"`
	ProductName  string       `json:"product_name,omitempty"`
}

// Me returns the identity admitted by the Gate.
//
// @Summary      Dashboard identity
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  dashboardResponse
// @Failure      302
// @Router       /api/dashboard/me [get]
func (h *DashboardHandler) Me(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dashboardResponse{
		User:         toUserSummary(identity),
		Subscription: string(identity.SubscriptionStatus),
		ProductName:  identity.ProductName,
	})
}
