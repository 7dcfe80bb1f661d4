package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/api/metrics"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/api/middleware"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

// CookieConfig controls the session cookie written on login.
type CookieConfig struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	authService ports.AuthService
	cookie      CookieConfig
	log         zerolog.Logger
}

func NewAuthHandler(authService ports.AuthService, cookie CookieConfig, log zerolog.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "session"
	}
	return &AuthHandler{authService: authService, cookie: cookie, log: log}
}

type loginRequest struct {
	Email      string `json:"email"`
	Username   string `json:"username"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// identifier accepts whichever of email, username or identifier was sent.
func (r loginRequest) identifier() string {
	for _, v := range []string{r.Identifier, r.Email, r.Username} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type tokenPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// Login authenticates by email or username and sets the session cookie.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Email or username and password"
// @Success      200   {object}  userEnvelope
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      429   {object}  ErrorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		metrics.LoginsTotal.WithLabelValues("invalid").Inc()
		return invalidPayload(c)
	}

	identity, session, err := h.authService.Login(c.Request().Context(), req.identifier(), req.Password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
		return respond(c, err)
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()

	h.setSessionCookie(c, session.Token, session.ExpiresAt)
	return c.JSON(http.StatusOK, userEnvelope{User: toUserSummary(identity)})
}

// Logout clears the session cookie. It always succeeds.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  successResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

// Me returns the identity behind the current session, or null.
//
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Success      200  {object}  userEnvelope
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	token := middleware.SessionToken(c.Request(), h.cookie.Name)
	identity := h.authService.CurrentUser(c.Request().Context(), token)
	return c.JSON(http.StatusOK, userEnvelope{User: toUserSummary(identity)})
}

// SetPassword redeems an invite token and activates the identity.
//
// @Summary      Accept an invite
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      tokenPasswordRequest  true  "Invite token and new password"
// @Success      200   {object}  successResponse
// @Failure      400   {object}  ErrorResponse
// @Router       /auth/set-password [post]
func (h *AuthHandler) SetPassword(c echo.Context) error {
	var req tokenPasswordRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	identity, err := h.authService.SetPassword(c.Request().Context(), req.Token, req.Password)
	metrics.TokenConsumptionsTotal.WithLabelValues("invite", tokenResult(err)).Inc()
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, successResponse{Success: true, User: toUserSummary(identity)})
}

// ForgotPassword responds identically whether or not the email is known.
//
// @Summary      Request a password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account email"
// @Success      200   {object}  successResponse
// @Failure      400   {object}  ErrorResponse
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	err := h.authService.ForgotPassword(c.Request().Context(), req.Email)
	if errors.Is(err, domain.ErrValidation) {
		return respond(c, err)
	}
	if err != nil {
		// A store failure only reachable for known emails must not turn into
		// a distinguishable response.
		h.log.Error().Err(err).Msg("forgot password failed")
	}
	metrics.PasswordResetRequestsTotal.Inc()
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

// ResetPassword redeems a reset token.
//
// @Summary      Reset a password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      tokenPasswordRequest  true  "Reset token and new password"
// @Success      200   {object}  successResponse
// @Failure      400   {object}  ErrorResponse
// @Router       /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req tokenPasswordRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	identity, err := h.authService.ResetPassword(c.Request().Context(), req.Token, req.Password)
	metrics.TokenConsumptionsTotal.WithLabelValues("reset", tokenResult(err)).Inc()
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, successResponse{Success: true, User: toUserSummary(identity)})
}

// Register is permanently disabled: identities come from provisioning or an administrator.
//
// @Summary      Self-service signup (disabled)
// @Tags         auth
// @Produce      json
// @Failure      403  {object}  ErrorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	return respond(c, h.authService.Register(c.Request().Context()))
}

func (h *AuthHandler) setSessionCookie(c echo.Context, token string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrThrottled):
		return "throttled"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

func tokenResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, domain.ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
