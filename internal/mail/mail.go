// Package mail composes account emails and hands them to a delivery backend:
// the message queue, SendGrid, or the log for local runs.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lumen-lms/apiserver/config"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/mq"
)

// Message is one outbound email.
type Message struct {
	To       string `json:"to"`
	ToName   string `json:"to_name,omitempty"`
	Subject  string `json:"subject"`
	Text     string `json:"text"`
	HTML     string `json:"html,omitempty"`
	Category string `json:"category,omitempty"`
}

// Validate checks the fields every backend needs.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("mail: recipient required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("mail: subject required")
	}
	if strings.TrimSpace(m.Text) == "" && strings.TrimSpace(m.HTML) == "" {
		return errors.New("mail: body required")
	}
	return nil
}

// Sender delivers or enqueues a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the sender selected by cfg.Backend. backend may be nil unless
// the queue sender is selected.
func New(cfg config.MailConfig, backend mq.Backend, log *logger.Logger) (Sender, error) {
	switch cfg.Backend {
	case "queue":
		if backend == nil {
			return nil, errors.New("mail: queue backend requires MQ_BACKEND")
		}
		return NewQueueSender(backend, cfg.Channel), nil
	case "sendgrid":
		return NewSendGridSender(cfg.SendGrid, log)
	case "", "log":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.Backend)
	}
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.With("component", "mail")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.log.Info("mail not sent (log backend)",
		"to", msg.To,
		"subject", msg.Subject,
		"category", msg.Category,
		"body", msg.Text,
	)
	return nil
}
