package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/internal/room/gateway"
	"github.com/mcdev12/hoot/go/internal/transport/natsbus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	config, err := loadConfig(getEnv("HOOT_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	busCfg := natsbus.DefaultConfig()
	busCfg.URL = config.natsURL()
	if config.NATS.StreamName != "" {
		busCfg.StreamName = config.NATS.StreamName
	}
	bus, err := natsbus.New(busCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer bus.Close()

	services := setupServices(pool)

	gatewayConfig := gateway.DefaultConnectionConfig()
	if config.Gateway.WriteTimeout > 0 {
		gatewayConfig.WriteTimeout = config.Gateway.WriteTimeout
	}
	if config.Gateway.PingInterval > 0 {
		gatewayConfig.PingInterval = config.Gateway.PingInterval
	}
	gatewayService := gateway.NewService(gatewayConfig, bus, clockwork.NewRealClock())

	server := setupServer(config, services, gatewayService)

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	time.Sleep(1 * time.Second)

	log.Info().Msg("hoot server shutdown complete")
}
