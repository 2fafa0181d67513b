package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lumen-lms/apiserver/config"
	"github.com/lumen-lms/apiserver/internal/logger"
)

const sendGridMaxRetries = 3

// SendGridSender delivers messages through the SendGrid v3 mail send API.
type SendGridSender struct {
	log        *logger.Logger
	cfg        config.SendGridConfig
	httpClient *http.Client
	backoff    time.Duration
}

func NewSendGridSender(cfg config.SendGridConfig, log *logger.Logger) (*SendGridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing SENDGRID_API_KEY")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("missing SENDGRID_FROM_EMAIL")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SendGridSender{
		log:        log.With("client", "SendGridSender"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    time.Second,
	}, nil
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
	Categories       []string          `json:"categories,omitempty"`
}

// HTTPError is a non-2xx answer from SendGrid.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 500 {
		body = body[:500] + "..."
	}
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, body)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	contents := make([]mailContent, 0, 2)
	if text := strings.TrimSpace(msg.Text); text != "" {
		contents = append(contents, mailContent{Type: "text/plain", Value: text})
	}
	if html := strings.TrimSpace(msg.HTML); html != "" {
		contents = append(contents, mailContent{Type: "text/html", Value: html})
	}
	wire := mailSendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: msg.To, Name: msg.ToName}}}},
		From:             emailAddress{Email: s.cfg.FromEmail, Name: s.cfg.FromName},
		Subject:          msg.Subject,
		Content:          contents,
	}
	if msg.Category != "" {
		wire.Categories = []string{msg.Category}
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	backoff := s.backoff
	for attempt := 0; ; attempt++ {
		err := s.post(ctx, body)
		if err == nil {
			return nil
		}
		var httpErr *HTTPError
		if attempt >= sendGridMaxRetries || (errors.As(err, &httpErr) && !httpErr.retryable()) {
			return err
		}
		s.log.Warn("sendgrid request retrying",
			"attempt", attempt+1,
			"max_retries", sendGridMaxRetries,
			"sleep", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *SendGridSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
