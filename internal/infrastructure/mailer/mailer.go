package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/yourorg/reviewflow/internal/reliability/circuitbreaker"
	"github.com/yourorg/reviewflow/internal/reliability/retry"
)

// Attachment is a file carried with an email, base64-encoded on the wire.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"` // base64
}

// Message is a transactional email.
type Message struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Sender delivers transactional email. Implemented by the HTTP provider
// client below and by test fakes.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Client sends email through a transactional provider's HTTP API.
// Deliveries retry with backoff behind a circuit breaker so a provider
// outage fails fast instead of stalling request handlers.
type Client struct {
	http    *resty.Client
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.Config
	from    string
	logger  *slog.Logger
}

// NewClient creates a provider client. baseURL and apiKey come from config;
// from is the platform sender address.
func NewClient(baseURL, apiKey, from string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)

	return &Client{
		http:    http,
		breaker: circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second),
		retry:   retry.DefaultConfig(),
		from:    from,
		logger:  logger,
	}
}

// NewAttachment base64-encodes raw bytes into an Attachment.
func NewAttachment(filename, contentType string, content []byte) Attachment {
	return Attachment{
		Filename:    filename,
		ContentType: contentType,
		Content:     base64.StdEncoding.EncodeToString(content),
	}
}

// Send delivers one message, retrying transient failures.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	if !c.breaker.AllowRequest() {
		return fmt.Errorf("email provider unavailable (circuit open)")
	}
	if msg.From == "" {
		msg.From = c.from
	}

	_, err := retry.Do(ctx, c.retry, c.logger, "send_email", func(ctx context.Context) (struct{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(msg).
			Post("/emails")
		if err != nil {
			return struct{}{}, fmt.Errorf("email request failed: %w", err)
		}
		if resp.IsError() {
			return struct{}{}, fmt.Errorf("email provider returned %d: %s", resp.StatusCode(), resp.String())
		}
		return struct{}{}, nil
	})
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Error("email delivery failed",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return err
	}
	c.breaker.RecordSuccess()
	c.logger.Info("email delivered",
		slog.String("subject", msg.Subject),
		slog.Int("recipients", len(msg.To)),
	)
	return nil
}
