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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/File-Sharing-BondBridg/Upload-Service/cmd/middleware"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/api"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/api/handlers/uploads"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/app"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/configuration"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/logger"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/nats"
)

func main() {
	cfg, err := configuration.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *configuration.Config, log zerolog.Logger) error {
	if cfg.Tracing.DDEnabled {
		tracer.Start(
			tracer.WithService(cfg.Server.ServiceName),
			tracer.WithEnv(cfg.Server.Environment),
		)
		defer tracer.Stop()
	}

	a, err := app.New(ctx, cfg, app.Options{Events: true}, log)
	if err != nil {
		return fmt.Errorf("initialize service: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to release resources")
		}
	}()

	var verifier middleware.Verifier
	if cfg.Auth.KeycloakURL != "" {
		v, err := middleware.InitAuth(ctx, cfg.Auth.KeycloakURL, cfg.Auth.AllowedAZP)
		if err != nil {
			return err
		}
		log.Info().Str("issuer", cfg.Auth.KeycloakURL).Msg("OIDC verifier initialized")
		verifier = v
	} else {
		log.Warn().Msg("KEYCLOAK_URL is empty, every request is handled as a guest")
	}

	if a.JetStream != nil {
		consumers := nats.NewClient(a.JetStream, log)
		async := cfg.Image.Thumbnails && cfg.Image.ThumbnailsAsync
		if err := consumers.SubscribeAll(nats.Routes(a.Service, async, log)); err != nil {
			return fmt.Errorf("subscribe consumers: %w", err)
		}
		defer consumers.Unsubscribe()
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.RegisterRoutes(r, uploads.NewHandler(a.Service, cfg.Server.Debug, log), api.Options{
		ServiceName: cfg.Server.ServiceName,
		Tracing:     cfg.Tracing.DDEnabled,
		Auth:        middleware.Authenticate(verifier, log),
		Log:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
