package mq

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

const memoryBuffer = 64

// Memory is an in-process Backend. Messages published before a subscriber
// attaches are buffered per channel.
type Memory struct {
	mu       sync.Mutex
	channels map[string]chan Message
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{channels: make(map[string]chan Message)}
}

func (m *Memory) channel(name string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("memory mq closed")
	}
	ch, ok := m.channels[name]
	if !ok {
		ch = make(chan Message, memoryBuffer)
		m.channels[name] = ch
	}
	return ch, nil
}

func (m *Memory) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	ch, err := m.channel(channel)
	if err != nil {
		return "", err
	}
	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	select {
	case ch <- msg:
		return msg.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Subscribe delivers messages until ctx is done. A failed message is
// redelivered once.
func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	ch, err := m.channel(channel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			if err := handler(ctx, msg); err != nil {
				_ = handler(ctx, msg)
			}
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
