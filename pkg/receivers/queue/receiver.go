// Package queue consumes inbound contact events from a Redis list and hands
// them to the trigger gate. Producers (channel webhooks, CRM sync jobs) push
// JSON-encoded trigger events; the receiver pops them with BLPOP.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sequorhq/sequor/pkg/models"
)

const popTimeout = 1 * time.Second

// Callback handles one decoded inbound event.
type Callback func(ctx context.Context, event models.TriggerEvent) error

// Config is the Redis connection and queue selection.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// Receiver pops inbound events off a Redis list.
type Receiver struct {
	config   Config
	client   redis.UniversalClient
	callback Callback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewReceiver creates a queue receiver. The connection is established on Start.
func NewReceiver(config Config, logger *slog.Logger) (*Receiver, error) {
	if config.Queue == "" {
		return nil, errors.New("queue receiver queue name is required")
	}

	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	return &Receiver{
		config: config,
		stopCh: make(chan struct{}),
		logger: logger.With("module", "queue_receiver", "queue", config.Queue),
	}, nil
}

// Start connects to Redis and begins consuming in the background.
func (r *Receiver) Start(ctx context.Context, callback Callback) error {
	r.callback = callback

	r.client = redis.NewClient(&redis.Options{
		Addr:     r.config.Addr,
		Password: r.config.Password,
		DB:       r.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.logger.InfoContext(ctx, "Connected to Redis", "addr", r.config.Addr, "db", r.config.DB)

	r.wg.Add(1)

	go r.consume(ctx)

	return nil
}

func (r *Receiver) consume(ctx context.Context) {
	defer r.wg.Done()

	r.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-r.stopCh:
			r.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			err := r.processMessage(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (r *Receiver) processMessage(ctx context.Context) error {
	result, err := r.client.BLPop(ctx, popTimeout, r.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var event models.TriggerEvent
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		// Malformed payloads are dropped, not requeued; they would fail forever.
		r.logger.WarnContext(ctx, "Dropping malformed event payload", "error", err)

		return nil
	}

	if event.Type == "" || event.OrganizationID == "" || event.ContactID == "" {
		r.logger.WarnContext(ctx, "Dropping incomplete event",
			"type", event.Type, "organization_id", event.OrganizationID, "contact_id", event.ContactID)

		return nil
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := r.callback(ctx, event); err != nil {
		r.logger.ErrorContext(ctx, "Error handling inbound event",
			"event_type", event.Type, "contact_id", event.ContactID, "error", err)
	}

	return nil
}

// Stop halts consumption and closes the connection.
func (r *Receiver) Stop(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Stopping queue receiver")

	close(r.stopCh)
	r.wg.Wait()

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
