package scheduler

import (
	"context"
	"fmt"

	"marketplace_backend/internal/realtime"
	"marketplace_backend/platform/config"
	"marketplace_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Publisher is implemented by realtime.Relay. When the worker's broadcaster
// also publishes with an error result, failed publishes are retried by asynq.
type Publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	out    realtime.Broadcaster
	log    *logger.Logger
}

// NewWorker creates the task server. Broadcasts are delivered through out,
// normally a publish-only realtime.Relay so every API instance receives them.
func NewWorker(cfg config.SchedulerConfig, out realtime.Broadcaster, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		out:    out,
		log:    log,
	}
	w.mux.HandleFunc(TaskRealtimeBroadcast, w.handleBroadcast)

	return w, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start scheduler worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}

func (w *Worker) handleBroadcast(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseBroadcastPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if pub, ok := w.out.(Publisher); ok {
		if err := pub.Publish(ctx, payload.Room, payload.Event, payload.Data); err != nil {
			return fmt.Errorf("publish scheduled broadcast: %w", err)
		}
		w.log.Info("scheduled broadcast published", "room", payload.Room, "event", payload.Event)
		return nil
	}

	w.out.Broadcast(payload.Room, payload.Event, payload.Data)
	w.log.Info("scheduled broadcast delivered", "room", payload.Room, "event", payload.Event)
	return nil
}
