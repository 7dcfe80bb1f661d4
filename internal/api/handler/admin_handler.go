package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

// AdminHandler exposes the administrator lifecycle actions. It is mounted
// behind the Gate and RBAC(ADMIN).
type AdminHandler struct {
	service ports.AdminService
}

func NewAdminHandler(service ports.AdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

// --- Request / Response types ---

type createUserRequest struct {
	Email    string `json:"email"    validate:"required"`
	Name     string `json:"name"`
	Username string `json:"username" validate:"omitempty,excludesall=@ "`
	Password string `json:"password" validate:"omitempty,min=8"`
	Role     string `json:"role"     validate:"omitempty,oneof=USER ADMIN"`
}

type updateUserRequest struct {
	Name               *string `json:"name"`
	Username           *string `json:"username"`
	Role               *string `json:"role"                validate:"omitempty,oneof=USER ADMIN"`
	Active             *bool   `json:"active"`
	SubscriptionStatus *string `json:"subscription_status" validate:"omitempty,oneof=ACTIVE UNSUBSCRIBED"`
}

type setPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	User *domain.Identity `json:"user"`
}

type usersResponse struct {
	Users []*domain.Identity `json:"users"`
}

type createUserResponse struct {
	User              *domain.Identity `json:"user"`
	GeneratedPassword string           `json:"generated_password,omitempty"`
}

type resendInviteResponse struct {
	Success    bool   `json:"success"`
	InviteLink string `json:"invite_link"`
}

// List handles GET /admin/api/users.
//
// @Summary      List users
// @Tags         admin
// @Produce      json
// @Success      200  {object}  usersResponse
// @Router       /admin/api/users [get]
func (h *AdminHandler) List(c echo.Context) error {
	users, err := h.service.ListUsers(c.Request().Context())
	if err != nil {
		return respond(c, err)
	}
	if users == nil {
		users = []*domain.Identity{}
	}
	return c.JSON(http.StatusOK, usersResponse{Users: users})
}

// Get handles GET /admin/api/users/:id.
//
// @Summary      Get a user
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "Identity id"
// @Success      200  {object}  userResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /admin/api/users/{id} [get]
func (h *AdminHandler) Get(c echo.Context) error {
	user, err := h.service.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, userResponse{User: user})
}

// Create handles POST /admin/api/users.
//
// @Summary      Create an active user
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        body  body      createUserRequest  true  "New user"
// @Success      201   {object}  createUserResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Router       /admin/api/users [post]
func (h *AdminHandler) Create(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	if err := c.Validate(&req); err != nil {
		return respond(c, err)
	}

	res, err := h.service.CreateUser(c.Request().Context(), ports.CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Username: req.Username,
		Password: req.Password,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, createUserResponse{User: res.Identity, GeneratedPassword: res.GeneratedPassword})
}

// Update handles PATCH /admin/api/users/:id.
//
// @Summary      Update a user
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Identity id"
// @Param        body  body      updateUserRequest  true  "Fields to change"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /admin/api/users/{id} [patch]
func (h *AdminHandler) Update(c echo.Context) error {
	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	if err := c.Validate(&req); err != nil {
		return respond(c, err)
	}

	in := ports.UpdateUserInput{Name: req.Name, Username: req.Username, Active: req.Active}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		in.Role = &role
	}
	if req.SubscriptionStatus != nil {
		status := domain.SubscriptionStatus(*req.SubscriptionStatus)
		in.SubscriptionStatus = &status
	}

	user, err := h.service.UpdateUser(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, userResponse{User: user})
}

// SetPassword handles POST /admin/api/users/:id/password.
//
// @Summary      Set a user's password
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id    path      string              true  "Identity id"
// @Param        body  body      setPasswordRequest  true  "New password"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /admin/api/users/{id}/password [post]
func (h *AdminHandler) SetPassword(c echo.Context) error {
	var req setPasswordRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	if err := c.Validate(&req); err != nil {
		return respond(c, err)
	}
	user, err := h.service.SetPassword(c.Request().Context(), c.Param("id"), req.Password)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, userResponse{User: user})
}

// ResendInvite handles POST /admin/api/users/:id/resend-invite.
//
// @Summary      Resend an invite
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "Identity id"
// @Success      200  {object}  resendInviteResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /admin/api/users/{id}/resend-invite [post]
func (h *AdminHandler) ResendInvite(c echo.Context) error {
	link, err := h.service.ResendInvite(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, resendInviteResponse{Success: true, InviteLink: link})
}

// Delete handles DELETE /admin/api/users/:id.
//
// @Summary      Delete a user and everything it owns
// @Tags         admin
// @Param        id   path  string  true  "Identity id"
// @Success      204
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /admin/api/users/{id} [delete]
func (h *AdminHandler) Delete(c echo.Context) error {
	actor, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteUser(c.Request().Context(), actor.ID, c.Param("id")); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
