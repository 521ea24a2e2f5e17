package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pulsechat/pulse/internal/configure"
	"github.com/pulsechat/pulse/internal/realtime"
	"github.com/pulsechat/pulse/internal/server"
	"github.com/pulsechat/pulse/internal/store"
)

func main() {
	cfg := configure.New()
	defer func() {
		_ = zap.S().Sync()
	}()

	zap.S().Infow("starting pulse server", "addr", cfg.Addr)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	presenceStore, teardown := buildStore(ctx, cfg)
	cancel()
	defer teardown()

	srv := server.New(cfg, presenceStore)
	srv.StartHub()

	httpServer := server.CreateServer(cfg.Addr, srv.SetupRoutes())

	go func() {
		if err := server.StartServer(httpServer); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalw("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.S().Infow("shutting down")

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		zap.S().Errorw("server shutdown failed", "error", err)
	}
	if err := srv.Hub().Shutdown(cfg.ShutdownTimeout); err != nil {
		zap.S().Errorw("hub shutdown incomplete", "error", err)
	}

	zap.S().Infow("server exited")
}

// buildStore assembles the storage collaborator chain from configuration:
// MongoDB when a URI is set (no-op otherwise), optionally mirrored to Redis so
// sibling services can read liveness. The returned teardown closes whatever
// was opened.
func buildStore(ctx context.Context, cfg *configure.Config) (realtime.PresenceStore, func()) {
	var presenceStore realtime.PresenceStore = store.Noop{}
	teardown := func() {}

	if cfg.Storage.Mongo.URI != "" {
		client, err := store.Dial(ctx, cfg.Storage.Mongo.URI)
		if err != nil {
			zap.S().Fatalw("mongodb", "error", err)
		}
		presenceStore = store.NewMongo(client.Database(cfg.Storage.Mongo.Database))
		teardown = func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				zap.S().Warnw("mongodb disconnect", "error", err)
			}
		}
		zap.S().Infow("presence store connected", "database", cfg.Storage.Mongo.Database)
	} else {
		zap.S().Warnw("no mongodb configured; presence will not be persisted and friend lists are empty")
	}

	if cfg.Storage.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			zap.S().Fatalw("redis", "error", err)
		}
		presenceStore = store.NewMirror(presenceStore, client, cfg.Storage.Redis.TTL)
		zap.S().Infow("redis presence mirror enabled", "addr", cfg.Storage.Redis.Addr)
	}

	return presenceStore, teardown
}
