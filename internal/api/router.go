package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/faisalazhar1701/destinycreditai-sub000/docs"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/api/handler"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/api/middleware"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
	infrahttp "github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/http"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/http/handlers"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Auth         ports.AuthService
	Provisioning ports.ProvisioningService
	Admin        ports.AdminService
	Policy       ports.AccessPolicy
	Verifier     ports.SessionVerifier

	// Health lists readiness dependencies by name. Nil entries are skipped.
	Health map[string]handlers.Pinger
}

// Options carry the HTTP-facing settings.
type Options struct {
	CookieName         string
	CookieSecure       bool
	LoginPath          string
	LapsedPath         string
	ProvisioningSecret string

	// Registerer and Gatherer back the HTTP metrics and /metrics. They
	// default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps, opts Options, log zerolog.Logger) *echo.Echo {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: opts.Registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.Use(middleware.Gate(middleware.GateConfig{
		Verifier:   deps.Verifier,
		Policy:     deps.Policy,
		CookieName: opts.CookieName,
		LoginPath:  opts.LoginPath,
		LapsedPath: opts.LapsedPath,
		Log:        log,
	}))

	// --- Auth routes (public) ---
	authHandler := handler.NewAuthHandler(deps.Auth, handler.CookieConfig{Name: opts.CookieName, Secure: opts.CookieSecure}, log)
	auth := e.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", authHandler.Me)
	auth.POST("/set-password", authHandler.SetPassword)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)
	auth.POST("/register", authHandler.Register)

	// --- Provisioning webhook (shared secret) ---
	provisioningHandler := handler.NewProvisioningHandler(deps.Provisioning, log)
	e.POST("/provisioning/create-user", provisioningHandler.CreateUser, middleware.ProvisioningSecret(opts.ProvisioningSecret))

	// --- Protected areas (the Gate has already admitted the identity) ---
	dashboardHandler := handler.NewDashboardHandler()
	e.GET("/dashboard", dashboardHandler.Me)
	e.GET("/api/dashboard/me", dashboardHandler.Me)

	adminOnly := middleware.RBAC(domain.RoleAdmin)
	e.GET("/admin", dashboardHandler.Me, adminOnly)

	adminHandler := handler.NewAdminHandler(deps.Admin)
	users := e.Group("/admin/api/users", adminOnly)
	users.GET("", adminHandler.List)
	users.POST("", adminHandler.Create)
	users.GET("/:id", adminHandler.Get)
	users.PATCH("/:id", adminHandler.Update)
	users.DELETE("/:id", adminHandler.Delete)
	users.POST("/:id/password", adminHandler.SetPassword)
	users.POST("/:id/resend-invite", adminHandler.ResendInvite)

	// --- Operational ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: opts.Gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	infrahttp.RegisterHealthRoutes(e, deps.Health)

	return e
}

// requestLogger feeds echo's request logger into zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
