package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"marketplace_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// BroadcastScheduler defers a room broadcast until runAt.
type BroadcastScheduler interface {
	ScheduleBroadcast(ctx context.Context, payload BroadcastPayload, runAt time.Time) (string, error)
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleBroadcast enqueues the broadcast and returns the task id.
func (c *Client) ScheduleBroadcast(ctx context.Context, payload BroadcastPayload, runAt time.Time) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("scheduler not configured")
	}

	task, err := NewBroadcastTask(payload)
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task, asynq.ProcessAt(runAt), asynq.Queue(c.queue), asynq.MaxRetry(3))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// NewRedisClient opens a go-redis client for the realtime relay using the same
// URL and TLS settings as the task queue.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	opt.TLSConfig = tlsConfig(opt.TLSConfig, cfg.GetRedisTLSInsecure())
	return redis.NewClient(opt), nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig(opt.TLSConfig, tlsInsecure),
	}, nil
}

func tlsConfig(base *tls.Config, insecure bool) *tls.Config {
	if base != nil {
		clone := base.Clone()
		if insecure {
			clone.InsecureSkipVerify = true
		}
		return clone
	}
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}
	}
	return nil
}

var _ BroadcastScheduler = (*Client)(nil)
