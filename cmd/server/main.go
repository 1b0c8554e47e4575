package main

import (
	"context"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/crosticlab/crostic-battle-backend/internal/config"
	"github.com/crosticlab/crostic-battle-backend/internal/httpapi"
	"github.com/crosticlab/crostic-battle-backend/internal/hub"
	"github.com/crosticlab/crostic-battle-backend/internal/invite"
	"github.com/crosticlab/crostic-battle-backend/internal/presence"
	"github.com/crosticlab/crostic-battle-backend/internal/store"
	"github.com/crosticlab/crostic-battle-backend/internal/ws"
)

func main() {
	_ = godotenv.Load() // .env is optional

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.FromEnv()
	ctx := context.Background()

	db, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	registry := presence.NewRegistry(logger)
	broker := invite.NewBroker(ctx, registry, cfg.InviteTTL, logger)
	h := hub.NewHub(ctx, cfg.SessionIdleTimeout, logger)
	gateway := ws.NewGateway(h, registry, broker, db, logger)

	handler := httpapi.SetupRoutes(gateway, db, db, logger)

	logger.Info("listening", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}
