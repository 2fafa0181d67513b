package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lumen-lms/apiserver/config"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// ErrDisabled is returned by Open when no broker is configured.
var ErrDisabled = errors.New("message queue disabled")

// Open connects to the broker selected by cfg.Backend.
func Open(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch cfg.Backend {
	case "rabbitmq":
		return NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubClient(ctx, cfg.PubSub)
	case "memory":
		return NewMemory(), nil
	case "", "none":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// PublishJSON encodes v and publishes it with a content-type attribute.
func PublishJSON(ctx context.Context, backend Backend, channel string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return backend.Publish(ctx, channel, data, map[string]string{"content-type": "application/json"})
}
