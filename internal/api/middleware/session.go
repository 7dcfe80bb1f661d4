package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

const identityKey = "identity"

// SessionToken extracts the session credential from the named cookie, or
// from an "Authorization: Bearer" header when the cookie is absent.
func SessionToken(r *http.Request, cookieName string) string {
	if ck, err := r.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	return BearerToken(r)
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get(echo.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// SetIdentity stores the admitted identity on the request context.
func SetIdentity(c echo.Context, identity *domain.Identity) {
	c.Set(identityKey, identity)
}

// IdentityFrom returns the identity admitted by the Gate, or nil.
func IdentityFrom(c echo.Context) *domain.Identity {
	identity, _ := c.Get(identityKey).(*domain.Identity)
	return identity
}
