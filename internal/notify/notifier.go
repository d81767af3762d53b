// Package notify broadcasts asynchronous job completion events. Delivery is
// fire-and-forget: the core never depends on a subscriber being present.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/logging"
)

// Channel is the pub/sub channel job events are published on.
const Channel = "dreamina:jobs"

// Job types carried in events.
const (
	JobTypeBatchCreate = "batch_create"
	JobTypeRefreshAll  = "refresh_all"
)

// JobEvent describes the outcome of an asynchronous batch operation.
// Partial batches report per-item outcomes rather than failing as a whole.
type JobEvent struct {
	JobID     string    `json:"job_id"`
	Type      string    `json:"type"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Message   string    `json:"message,omitempty"`
	Items     []JobItem `json:"items,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JobItem is the per-item outcome within a batch job.
type JobItem struct {
	Key   string `json:"key"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Notifier is the notification collaborator interface.
type Notifier interface {
	// PublishJobEvent emits a job completion event. Errors are for the
	// caller's logs only; jobs never fail because a notification did.
	PublishJobEvent(ctx context.Context, event JobEvent) error
	Close() error
}

// Subscriber receives job events published on the channel. Only Redis-backed
// notifiers can subscribe; the noop notifier does not implement this.
type Subscriber interface {
	SubscribeJobEvents(ctx context.Context) (<-chan JobEvent, error)
}

// Config holds Redis connection settings for the notifier.
type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// RedisNotifier publishes job events to a Redis pub/sub channel.
type RedisNotifier struct {
	rdb    *redis.Client
	logger logging.Logger
}

// NewRedisNotifier connects to Redis and verifies the connection.
func NewRedisNotifier(config *Config) (*RedisNotifier, error) {
	if config == nil || config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisNotifier{
		rdb:    rdb,
		logger: logging.WithFields(logging.Field{Key: "component", Value: "notify"}),
	}, nil
}

// PublishJobEvent publishes the event as JSON on the jobs channel.
func (n *RedisNotifier) PublishJobEvent(ctx context.Context, event JobEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode job event: %w", err)
	}

	if err := n.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}

	n.logger.Debug("Job event published",
		logging.String("job_id", event.JobID),
		logging.String("type", event.Type),
	)
	return nil
}

// SubscribeJobEvents subscribes to the jobs channel. The returned channel is
// closed when ctx is cancelled or the connection drops.
func (n *RedisNotifier) SubscribeJobEvents(ctx context.Context) (<-chan JobEvent, error) {
	sub := n.rdb.Subscribe(ctx, Channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to job events: %w", err)
	}

	out := make(chan JobEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event JobEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					n.logger.Warn("Dropping malformed job event", logging.Err(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}

// NoopNotifier is used when no Redis address is configured.
type NoopNotifier struct{}

// PublishJobEvent drops the event.
func (NoopNotifier) PublishJobEvent(ctx context.Context, event JobEvent) error {
	return nil
}

// Close is a no-op.
func (NoopNotifier) Close() error {
	return nil
}
