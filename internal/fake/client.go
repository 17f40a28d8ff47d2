package fake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"campaign-mailer/internal/mail"
)

var ErrSimulated = errors.New("simulated failure")

type Config struct {
	// Failing lists recipients that are always rejected
	Failing []string
	Latency time.Duration
}

// Client accepts every message without touching the network.
type Client struct {
	failing map[string]bool
	latency time.Duration
	logger  *slog.Logger
}

func New(cfg Config) *Client {
	failing := make(map[string]bool, len(cfg.Failing))
	for _, address := range cfg.Failing {
		failing[strings.ToLower(strings.TrimSpace(address))] = true
	}

	return &Client{
		failing: failing,
		latency: cfg.Latency,
		logger:  slog.With("component", "fake-transport"),
	}
}

func (c *Client) Send(ctx context.Context, envelope mail.Envelope) (mail.Receipt, error) {
	if c.latency > 0 {
		timer := time.NewTimer(c.latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return mail.Receipt{}, ctx.Err()
		case <-timer.C:
		}
	}

	if c.failing[strings.ToLower(envelope.To)] {
		return mail.Receipt{}, fmt.Errorf("%w for %s", ErrSimulated, envelope.To)
	}

	id := "fake-" + uuid.NewString()
	c.logger.Debug(fmt.Sprintf("accepted message %s", id), "recipient", envelope.To, "subject", envelope.Subject)

	return mail.Receipt{MessageID: id, Response: "250 fake accepted"}, nil
}

func (c *Client) Verify(context.Context) error {
	return nil
}
