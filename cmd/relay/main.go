package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/teamerhq/relay/internal/persist"
	"github.com/teamerhq/relay/internal/presence"
	"github.com/teamerhq/relay/internal/server"
	"github.com/teamerhq/relay/pkg/config"
	"github.com/teamerhq/relay/pkg/logging"
)

func main() {
	// .env is only there for local development; absence is fine.
	_ = godotenv.Load()

	bootLogger := logging.New(logging.LevelInfo)
	cfg, err := config.Load(bootLogger, "config")
	if err != nil {
		bootLogger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var mirror presence.Mirror = presence.NoopMirror{}
	if cfg.Presence.Redis.Enabled {
		redisMirror, err := presence.NewRedisMirror(ctx, cfg.Presence.Redis, logger)
		if err != nil {
			logger.Error("Failed to connect presence mirror", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisMirror.Close()
		mirror = redisMirror
	}

	store := persist.NewClient(cfg.Persistence, logger)

	app := server.NewApp(logger, ctx, cfg, store, mirror)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
