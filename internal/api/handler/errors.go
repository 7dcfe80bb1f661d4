package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

// ErrorResponse is the canonical error envelope for all API errors.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

const weakPasswordMessage = "password must be at least 8 characters and at most 72 bytes, and contain an upper-case letter, a lower-case letter and a digit"

// Resolve maps a known domain error to its HTTP status and envelope. ok is
// false for unexpected errors, which must not leak to clients.
func Resolve(err error) (code int, body ErrorResponse, ok bool) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrorResponse{Error: ve.Reason, Fields: ve.Fields}, true
	case errors.Is(err, domain.ErrWeakPassword):
		return http.StatusBadRequest, ErrorResponse{Error: weakPasswordMessage, Fields: []string{"password"}}, true
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid or already used token"}, true
	case errors.Is(err, domain.ErrExpiredToken):
		return http.StatusBadRequest, ErrorResponse{Error: "token expired"}, true
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"}, true
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"}, true
	case errors.Is(err, domain.ErrSignupDisabled):
		return http.StatusForbidden, ErrorResponse{Error: domain.ErrSignupDisabled.Error()}, true
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Error: "access forbidden"}, true
	case errors.Is(err, domain.ErrIdentityNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "user not found"}, true
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, ErrorResponse{Error: "conflicts with an existing user"}, true
	case errors.Is(err, domain.ErrThrottled):
		return http.StatusTooManyRequests, ErrorResponse{Error: "too many attempts, try again later"}, true
	}
	return 0, ErrorResponse{}, false
}

// respond renders known domain errors and hands anything else to the
// central error handler.
func respond(c echo.Context, err error) error {
	if code, body, ok := Resolve(err); ok {
		return c.JSON(code, body)
	}
	return err
}

func invalidPayload(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
}
