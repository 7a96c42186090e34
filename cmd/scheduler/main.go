package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"marketplace_backend/internal/realtime"
	"marketplace_backend/internal/scheduler"
	"marketplace_backend/platform/config"
	"marketplace_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	// Publish-only: API instances subscribed to the channel deliver to their members.
	relay := realtime.NewRelay(rdb, cfg.GetRelayChannel(), nil, log)

	worker, err := scheduler.NewWorker(cfg, relay, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	if err := worker.Run(ctx); err != nil {
		log.Error("scheduler worker failed", "error", err)
		os.Exit(1)
	}
}
