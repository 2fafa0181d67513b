package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumen-lms/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDisabled(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: "none"})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)
}

func TestMemoryPublishSubscribe(t *testing.T) {
	backend := NewMemory()
	defer backend.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := PublishJSON(ctx, backend, "mail.outbound", map[string]string{"to": "a@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	received := make(chan Message, 1)
	go func() {
		_ = backend.Subscribe(ctx, "mail.outbound", func(ctx context.Context, msg Message) error {
			received <- msg
			return nil
		})
	}()

	select {
	case msg := <-received:
		assert.Equal(t, id, msg.ID)
		assert.JSONEq(t, `{"to":"a@example.com"}`, string(msg.Data))
		assert.Equal(t, "application/json", msg.Attributes["content-type"])
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestMemoryRedeliversOnce(t *testing.T) {
	backend := NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := backend.Publish(ctx, "jobs", []byte("x"), nil)
	require.NoError(t, err)

	attempts := make(chan struct{}, 4)
	go func() {
		_ = backend.Subscribe(ctx, "jobs", func(ctx context.Context, msg Message) error {
			attempts <- struct{}{}
			return errors.New("fail")
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-attempts:
		case <-ctx.Done():
			t.Fatalf("expected attempt %d", i+1)
		}
	}
	select {
	case <-attempts:
		t.Fatal("message delivered more than twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryClosed(t *testing.T) {
	backend := NewMemory()
	require.NoError(t, backend.Close())
	_, err := backend.Publish(context.Background(), "jobs", nil, nil)
	assert.Error(t, err)
}
