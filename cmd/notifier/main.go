package main

import (
	"context"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vn.io.arda/notification-client/internal/application"
	"vn.io.arda/notification-client/internal/config"
	"vn.io.arda/notification-client/internal/domain"
	"vn.io.arda/notification-client/internal/infrastructure/api"
	"vn.io.arda/notification-client/internal/infrastructure/identity"
	"vn.io.arda/notification-client/internal/infrastructure/realtime"
	transporthttp "vn.io.arda/notification-client/internal/transport/http"
)

func main() {
	// ── Logging ──────────────────────────────────────────────────────────────
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// ── Config ───────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.Server.Env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("env", cfg.Server.Env).Str("port", cfg.Server.Port).Msg("starting notification client")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Ambient credentials ──────────────────────────────────────────────────
	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create cookie jar")
	}
	identify := func(token string) (any, error) {
		if err := identity.Attach(jar, cfg.Auth.CookieName, token, cfg.API.BaseURL, cfg.Realtime.URL); err != nil {
			return nil, err
		}
		return identity.FromToken(token)
	}

	// ── Change stream hub ────────────────────────────────────────────────────
	hub := transporthttp.NewHub()

	// ── Backend gateway & store ──────────────────────────────────────────────
	gateway := api.New(cfg.API.BaseURL, jar, cfg.API.Timeout)
	store := application.NewStore(gateway, hub)

	// ── Real-time connection ─────────────────────────────────────────────────
	dialer, err := realtime.NewDialer(cfg.Realtime.Transports, cfg.Realtime.URL, cfg.Realtime.Path, jar, cfg.Realtime.PollWait)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build realtime dialer")
	}
	registry := realtime.NewRegistry()
	policy := realtime.ReconnectPolicy{
		Attempts: cfg.Realtime.ReconnectAttempts,
		Delay:    cfg.Realtime.ReconnectDelay,
	}
	conn := realtime.NewManager(dialer, registry, policy, func(state domain.ConnState, lastErr string) {
		hub.Publish(application.EventConnection, map[string]string{"state": string(state), "error": lastErr})
	})
	log.Info().Str("transport", dialer.Name()).Str("url", cfg.Realtime.URL).Msg("realtime configured")

	// ── Session ──────────────────────────────────────────────────────────────
	session := application.NewSession(ctx, store, conn)
	registry.Register(realtime.EventNewNotification, realtime.NotificationHandler(session.HandlePush))

	var seed any
	switch {
	case cfg.Viewer.Token != "":
		seed, err = identify(cfg.Viewer.Token)
		if err != nil {
			log.Error().Err(err).Msg("startup token rejected")
		}
	case cfg.Viewer.ID != "":
		seed = cfg.Viewer.ID
	}
	if seed != nil {
		if err := session.SetViewer(seed); err != nil {
			log.Warn().Err(err).Msg("startup viewer not bound")
		}
	} else {
		log.Info().Msg("no startup viewer, waiting for PUT /viewer")
	}

	// ── HTTP Server ──────────────────────────────────────────────────────────
	handler := transporthttp.NewHandler(session, hub, identify)
	router := transporthttp.NewRouter(handler, cfg.Control.Token)

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := router.Start(":" + cfg.Server.Port); err != nil {
			log.Info().Msg("HTTP server stopped")
		}
	}()

	// ── Graceful Shutdown ────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	session.Close()

	log.Info().Msg("notification client stopped")
}
