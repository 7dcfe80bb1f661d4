package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/api"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/service"
	redisstore "github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/db/redis"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/http/handlers"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/notify"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/queue"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/telemetry"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/pkg/config"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log := initLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	secret, err := cfg.SessionSecret()
	if err != nil {
		return err
	}
	if cfg.Session.Secret == "" {
		log.Warn().Msg("JWT_SECRET not set; using the insecure development secret")
	}

	shutdownTelemetry, err := telemetry.Init(ctx, "accessd", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	// --- Credential Store ---
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closeStore(closeCtx)
	}()

	health := map[string]handlers.Pinger{"store": store}

	// --- Throttle (optional) ---
	var throttle ports.Throttle
	if cfg.Redis.Addr != "" {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		throttle = redisstore.NewThrottle(rdb)
		health["redis"] = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis throttle enabled")
	}

	// --- Notifications ---
	sinks := notify.Fanout{notify.NewLogNotifier(log, !cfg.IsProduction())}
	if cfg.SMTP.Host != "" {
		sinks = append(sinks, notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
	}
	if cfg.NATS.URL != "" {
		bus, err := notify.DialBus(cfg.NATS.URL, cfg.NATS.SubjectPrefix, nats.Name("accessd"))
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer bus.Close()
		sinks = append(sinks, bus)
		health["nats"] = handlers.PingFunc(func(context.Context) error {
			if !bus.Connected() {
				return errors.New("not connected")
			}
			return nil
		})
	}
	dispatcher := queue.NewDispatcher(cfg.Notify.Workers, sinks, log)
	dispatcher.Start(ctx)

	// --- Core services ---
	links := service.Links{BaseURL: cfg.AppBaseURL}
	hasher := service.NewPasswordHasher(cfg.Security.BcryptCost)
	tokens := service.NewTokenIssuer(store, hasher, cfg.Tokens.InviteTTL, cfg.Tokens.ResetTTL)
	sessions, err := service.NewSessionSigner(secret, cfg.Session.TTL)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(store, tokens, sessions, hasher, dispatcher, throttle, service.AuthConfig{
		Links:  links,
		Login:  service.ThrottlePolicy{Limit: cfg.Throttle.LoginLimit, Window: cfg.Throttle.LoginWindow},
		Forgot: service.ThrottlePolicy{Limit: cfg.Throttle.ForgotLimit, Window: cfg.Throttle.ForgotWindow},
	}, log)

	e := api.NewRouter(api.Deps{
		Auth:         authService,
		Provisioning: service.NewProvisioningService(store, tokens, dispatcher, links, log),
		Admin:        service.NewAdminService(store, tokens, hasher, dispatcher, links, log),
		Policy:       service.NewAccessPolicy(store, log),
		Verifier:     sessions,
		Health:       health,
	}, api.Options{
		CookieName:         cfg.Session.CookieName,
		CookieSecure:       cfg.Session.CookieSecure,
		LoginPath:          cfg.LoginPath,
		LapsedPath:         cfg.LapsedPath,
		ProvisioningSecret: cfg.Provisioning.Secret,
	}, log)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, "accessd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("store", cfg.Store.Driver).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server shutdown")
	}
	// Requests have finished, so nothing else is enqueued.
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("notification queue did not drain")
	}
	return nil
}
