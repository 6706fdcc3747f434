package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/config"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/handler"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/hub"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/index"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/registry"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/service"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/store"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/sweeper"
	"github.com/SwastikKasera/askleaf-livechat-server/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	log.Init(log.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "livechat-relay",
	})
	logger := log.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting livechat relay")

	// Initialize conversation store
	convStore, err := store.NewRedisConversationStore(cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize conversation store")
	}
	defer convStore.Close()
	logger.Info().Str("address", cfg.Redis.Address).Msg("connected to conversation store")

	// Initialize hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	// Initialize owned state and coordinator
	sessions := registry.NewSessionRegistry()
	convIndex := index.NewConversationIndex()
	relaySvc := service.NewRelayService(convStore, sessions, convIndex, wsHub)

	// Start eviction sweeper
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweep := sweeper.NewSweeper(convIndex, wsHub, cfg.Relay.SweepInterval, cfg.Relay.InactivityThreshold)
	sweep.Start(ctx)
	defer sweep.Stop()

	// Initialize WS handler
	wsHandler := handler.NewWSHandler(wsHub, relaySvc, cfg.WebSocket)

	// Setup HTTP server
	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      log.HTTPMiddleware(logger)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("livechat relay listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down livechat relay")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("livechat relay stopped")
}
