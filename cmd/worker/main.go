// Package main runs the background worker: notification delivery and invite cleanup.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/eventdesk/backend/config"
	"github.com/eventdesk/backend/internal/collaborators"
	"github.com/eventdesk/backend/internal/notifications"
	"github.com/eventdesk/backend/internal/realtime"
	"github.com/eventdesk/backend/internal/worker"
	"github.com/eventdesk/backend/pkg/database"
	"github.com/eventdesk/backend/pkg/queue"
	"github.com/eventdesk/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: time.Duration(cfg.Database.MaxConnLifetimeMin) * time.Minute,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB, PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// The worker only publishes; servers hold the subscriptions and relay to their sockets.
	hub := realtime.NewHub(logger, realtime.NewRedisPubSub(rdb.Client, logger))
	inbox := notifications.NewInbox(hub, nil)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewNotificationProcessor(jobQueue, notifications.NewRepository(pool), inbox, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	invites := collaborators.NewRepository(pool)
	scheduler, err := worker.NewScheduler(workerCtx, cfg.Worker.PurgeSchedule, invites, logger)
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	scheduler.Start()
	errwg := new(errgroup.Group)
	errwg.Go(func() error {
		processor.Run(workerCtx)
		return nil
	})
	errwg.Go(func() error {
		// Clean up anything that expired while the worker was down.
		worker.Purge(workerCtx, invites, time.Now().UTC(), logger)
		return nil
	})
	logger.Info("worker started", zap.String("purge_schedule", cfg.Worker.PurgeSchedule))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-scheduler.Stop().Done()
	if err := errwg.Wait(); err != nil {
		logger.Error("worker shutdown", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
