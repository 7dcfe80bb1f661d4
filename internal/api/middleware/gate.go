package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/api/metrics"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

// DefaultProtectedPrefixes are the dashboard and admin areas.
var DefaultProtectedPrefixes = []string{"/dashboard", "/admin", "/api/dashboard", "/api/admin"}

type GateConfig struct {
	Verifier   ports.SessionVerifier
	Policy     ports.AccessPolicy
	CookieName string
	LoginPath  string
	LapsedPath string
	// Protected lists path prefixes that require a session. Everything else
	// passes through untouched.
	Protected []string
	Log       zerolog.Logger
}

// Gate decides allow, redirect-to-login or redirect-to-lapsed for protected
// paths before any handler runs. Authentication (signature and expiry) and
// authorization (fresh store read) are separate steps.
func Gate(cfg GateConfig) echo.MiddlewareFunc {
	if len(cfg.Protected) == 0 {
		cfg.Protected = DefaultProtectedPrefixes
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.LapsedPath == "" {
		cfg.LapsedPath = "/subscription-lapsed"
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if !isProtected(path, cfg.Protected) {
				return next(c)
			}

			identityID, ok := cfg.Verifier.Authenticate(SessionToken(c.Request(), cfg.CookieName))
			if !ok {
				metrics.GateDecisionsTotal.WithLabelValues(string(ports.AccessLogin)).Inc()
				return c.Redirect(http.StatusFound, loginRedirect(cfg.LoginPath, c.Request()))
			}

			decision := cfg.Policy.Authorize(c.Request().Context(), identityID)
			metrics.GateDecisionsTotal.WithLabelValues(string(decision.Outcome)).Inc()

			switch decision.Outcome {
			case ports.AccessAllow:
				SetIdentity(c, decision.Identity)
				return next(c)
			case ports.AccessLapsed:
				cfg.Log.Debug().Str("identity_id", identityID).Str("path", path).Msg("gate: subscription lapsed")
				return c.Redirect(http.StatusFound, cfg.LapsedPath)
			default:
				return c.Redirect(http.StatusFound, loginRedirect(cfg.LoginPath, c.Request()))
			}
		}
	}
}

func isProtected(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// loginRedirect carries the original location so the login page can return
// to it. Only same-origin paths are ever produced.
func loginRedirect(loginPath string, r *http.Request) string {
	if r.Method != http.MethodGet {
		return loginPath
	}
	return loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
}
