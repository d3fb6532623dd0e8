// Package eventbus publishes and consumes execution lifecycle events over
// watermill publisher/subscriber pairs.
package eventbus

import (
	"context"

	"github.com/sequorhq/sequor/pkg/events"
)

type EventHandler func(ctx context.Context, event any) error

// EventBus is the messaging surface the engine, gate and scheduler use for
// lifecycle notifications.
type EventBus interface {
	Publish(ctx context.Context, key string, event events.Event) error
	Subscribe(ctx context.Context) error
	Handle(eventType events.EventType, handler EventHandler) error
	GenerateID() string
	Close() error
}
