package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"time"

	"campaign-mailer/internal/eml"
	"campaign-mailer/internal/mail"
)

var ErrRejected = errors.New("smtp server rejected message")

const defaultTimeout = 30 * time.Second

type Client struct {
	cfg     Config
	builder *eml.Builder
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg:     cfg,
		builder: eml.NewBuilder(),
		logger:  slog.With("component", "smtp"),
		now:     time.Now,
	}
}

func (c *Client) Send(ctx context.Context, envelope mail.Envelope) (mail.Receipt, error) {
	from, err := netmail.ParseAddress(c.cfg.From)
	if err != nil {
		return mail.Receipt{}, fmt.Errorf("invalid sender: %w", err)
	}

	to, err := netmail.ParseAddress(envelope.To)
	if err != nil {
		return mail.Receipt{}, fmt.Errorf("invalid recipient: %w", err)
	}

	headers, err := c.providerHeaders(envelope)
	if err != nil {
		return mail.Receipt{}, err
	}

	messageID := eml.NewMessageID(from.Address)
	message, err := c.builder.Build(eml.Message{
		MessageID:   messageID,
		From:        c.cfg.From,
		ReplyTo:     c.cfg.ReplyTo,
		To:          envelope.To,
		Subject:     envelope.Subject,
		HTML:        envelope.HTML,
		Text:        envelope.Text,
		Date:        c.now(),
		Attachments: envelope.Attachments,
		Headers:     headers,
	})
	if err != nil {
		return mail.Receipt{}, err
	}

	client, err := c.open(ctx)
	if err != nil {
		return mail.Receipt{}, err
	}
	defer func() { _ = client.Close() }()

	if err := client.Mail(from.Address); err != nil {
		return mail.Receipt{}, err
	}
	if err := client.Rcpt(to.Address); err != nil {
		return mail.Receipt{}, err
	}

	response, err := c.data(client, message)
	if err != nil {
		return mail.Receipt{}, err
	}

	if err := client.Quit(); err != nil {
		c.logger.Debug(fmt.Sprintf("quit after accepted message failed, error: %s", err))
	}

	return mail.Receipt{MessageID: messageID, Response: response}, nil
}

// Verify opens a session, negotiates TLS and authenticates without sending anything.
func (c *Client) Verify(ctx context.Context) error {
	client, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return client.Quit()
}

func (c *Client) providerHeaders(envelope mail.Envelope) (map[string]string, error) {
	headers := map[string]string{}

	if len(envelope.Tags) > 0 {
		headers["X-Mailgun-Tag"] = mail.TagList(envelope.Tags)
	}

	variables, err := mail.Variables(envelope.Metadata, c.now())
	if err != nil {
		return nil, fmt.Errorf("failed to encode variables: %w", err)
	}
	headers["X-Mailgun-Variables"] = variables

	if c.cfg.Track {
		headers["X-Mailgun-Track"] = "yes"
		headers["X-Mailgun-Track-Opens"] = "yes"
		headers["X-Mailgun-Track-Clicks"] = "yes"
	}

	return headers, nil
}

func (c *Client) open(ctx context.Context) (*smtp.Client, error) {
	server := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	tlsCfg := &tls.Config{
		ServerName:         c.cfg.Host,
		InsecureSkipVerify: c.cfg.AllowInsecureTls,
	}

	dialer := &net.Dialer{Timeout: c.cfg.Timeout}
	var (
		conn net.Conn
		err  error
	)
	if c.cfg.Secure {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", server)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", server)
	}
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := client.Hello("localhost"); err != nil {
		_ = client.Close()
		return nil, err
	}

	if !c.cfg.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				_ = client.Close()
				return nil, err
			}
		}
	}

	if c.cfg.User != "" {
		auth := smtp.PlainAuth("", c.cfg.User, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	return client, nil
}

// data runs the DATA exchange by hand so the final server reply can be
// reported back as the receipt response.
func (c *Client) data(client *smtp.Client, message []byte) (string, error) {
	id, err := client.Text.Cmd("DATA")
	if err != nil {
		return "", err
	}

	client.Text.StartResponse(id)
	_, _, err = client.Text.ReadResponse(354)
	client.Text.EndResponse(id)
	if err != nil {
		return "", err
	}

	writer := client.Text.DotWriter()
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	code, msg, err := client.Text.ReadResponse(250)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}

	return fmt.Sprintf("%d %s", code, msg), nil
}
