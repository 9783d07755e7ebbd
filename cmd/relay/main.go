package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Call/internal/adapters/http"
	"github.com/dkeye/Call/internal/adapters/presence"
	"github.com/dkeye/Call/internal/adapters/relay"
	"github.com/dkeye/Call/internal/app"
	"github.com/dkeye/Call/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config.SetupLogger("info")

	cfg, err := config.LoadRelay()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	config.SetupLogger(cfg.LogLevel)

	policy, err := app.PolicyFor(cfg.SlowConsumer)
	if err != nil {
		log.Error().Err(err).Msg("invalid slow_consumer")
		os.Exit(1)
	}
	hub := &app.Hub{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   policy,
	}
	if cfg.Redis.Addr != "" {
		store, err := presence.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Error().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis presence unavailable")
			os.Exit(1)
		}
		defer store.Close()
		hub.Presence = store
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis presence enabled")
	}

	limiter := relay.NewRoomRateLimiter(cfg.JoinRate.Limit, cfg.JoinRate.Interval)
	r := router.SetupRouter(ctx, cfg, hub, limiter)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Call relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	for _, info := range hub.Rooms.List() {
		hub.EvictRoom(info.ID)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
