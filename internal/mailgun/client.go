package mailgun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"campaign-mailer/internal/mail"
)

const DefaultBaseURL = "https://api.mailgun.net"

var ErrAPI = errors.New("mailgun api error")

type Config struct {
	BaseURL string
	Domain  string
	APIKey  string
	From    string
	ReplyTo string
	Track   bool
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
}

func (c *Client) Send(ctx context.Context, envelope mail.Envelope) (mail.Receipt, error) {
	body, contentType, err := c.form(envelope)
	if err != nil {
		return mail.Receipt{}, err
	}

	endpoint := fmt.Sprintf("%s/v3/%s/messages", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return mail.Receipt{}, err
	}
	req.SetBasicAuth("api", c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return mail.Receipt{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return mail.Receipt{}, fmt.Errorf("failed to read response: %w", err)
	}

	var decoded sendResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := decoded.Message
		if message == "" {
			message = strings.TrimSpace(string(raw))
		}
		return mail.Receipt{}, fmt.Errorf("%w: %d %s", ErrAPI, resp.StatusCode, message)
	}

	if decodeErr != nil {
		return mail.Receipt{}, fmt.Errorf("%w: malformed response %q: %w", ErrAPI, strings.TrimSpace(string(raw)), decodeErr)
	}
	if decoded.ID == "" {
		return mail.Receipt{}, fmt.Errorf("%w: response without message id %q", ErrAPI, strings.TrimSpace(string(raw)))
	}

	return mail.Receipt{MessageID: decoded.ID, Response: decoded.Message}, nil
}

func (c *Client) form(envelope mail.Envelope) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"from", c.cfg.From},
		{"to", envelope.To},
		{"subject", envelope.Subject},
	}
	if envelope.HTML != "" {
		fields = append(fields, [2]string{"html", envelope.HTML})
	}
	if envelope.Text != "" {
		fields = append(fields, [2]string{"text", envelope.Text})
	}
	if c.cfg.ReplyTo != "" {
		fields = append(fields, [2]string{"h:Reply-To", c.cfg.ReplyTo})
	}
	for _, tag := range envelope.Tags {
		fields = append(fields, [2]string{"o:tag", tag})
	}
	if c.cfg.Track {
		fields = append(fields,
			[2]string{"o:tracking", "yes"},
			[2]string{"o:tracking-opens", "yes"},
			[2]string{"o:tracking-clicks", "yes"},
		)
	}

	keys := make([]string, 0, len(envelope.Metadata))
	for key := range envelope.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fields = append(fields, [2]string{"v:" + key, envelope.Metadata[key]})
	}

	variables, err := mail.Variables(envelope.Metadata, c.now())
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode variables: %w", err)
	}
	fields = append(fields, [2]string{"h:X-Mailgun-Variables", variables})

	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", field[0], err)
		}
	}

	for _, path := range envelope.Attachments {
		if err := attach(writer, path); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}

func attach(writer *multipart.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("attachment", filepath.Base(path))
	if err != nil {
		return err
	}

	_, err = io.Copy(part, file)
	return err
}
