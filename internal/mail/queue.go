package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/mq"
)

// QueueSender publishes messages to a broker channel for the mail worker.
type QueueSender struct {
	backend mq.Backend
	channel string
}

func NewQueueSender(backend mq.Backend, channel string) *QueueSender {
	return &QueueSender{backend: backend, channel: channel}
}

func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if _, err := mq.PublishJSON(ctx, s.backend, s.channel, msg); err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

// Worker drains the mail channel into a delivering Sender.
type Worker struct {
	backend  mq.Backend
	channel  string
	delivery Sender
	log      *logger.Logger
}

func NewWorker(backend mq.Backend, channel string, delivery Sender, log *logger.Logger) *Worker {
	return &Worker{
		backend:  backend,
		channel:  channel,
		delivery: delivery,
		log:      log.With("component", "mail-worker", "channel", channel),
	}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("mail worker started")
	return w.backend.Subscribe(ctx, w.channel, w.handle)
}

func (w *Worker) handle(ctx context.Context, m mq.Message) error {
	var msg Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		// Malformed payloads can never succeed; acknowledge and drop them.
		w.log.Error("dropping malformed mail message", "message_id", m.ID, "error", err)
		return nil
	}
	if err := w.delivery.Send(ctx, msg); err != nil {
		w.log.Warn("mail delivery failed", "message_id", m.ID, "to", msg.To, "error", err)
		return err
	}
	w.log.Info("mail delivered", "message_id", m.ID, "to", msg.To, "category", msg.Category)
	return nil
}
