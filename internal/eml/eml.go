package eml

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Message struct {
	MessageID   string
	From        string
	ReplyTo     string
	To          string
	Subject     string
	HTML        string
	Text        string
	Date        time.Time
	Attachments []string
	Headers     map[string]string
}

// NewMessageID returns a unique angle-bracketed id scoped to the sender domain.
func NewMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 {
		domain = strings.TrimRight(from[at+1:], ">")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

type Builder struct {
	boundary func() string
}

func NewBuilder() *Builder {
	return &Builder{boundary: func() string { return "mixed-" + uuid.NewString() }}
}

var orderedStandardHeaders = []string{"Message-ID", "From", "Reply-To", "To", "Date", "Subject", "MIME-Version", "Content-Type"}

func (b *Builder) Build(msg Message) ([]byte, error) {
	boundary := b.boundary()
	var buf bytes.Buffer

	headers := b.standardHeaders(msg, boundary)
	for _, key := range orderedStandardHeaders {
		value, exists := headers[key]
		if !exists {
			continue
		}
		if err := writeFoldedHeader(&buf, key, value); err != nil {
			return nil, fmt.Errorf("failed to write header %s: %w", key, err)
		}
	}

	customKeys := make([]string, 0, len(msg.Headers))
	for key := range msg.Headers {
		if isStandardHeader(key) {
			continue
		}
		customKeys = append(customKeys, key)
	}
	sort.Strings(customKeys)

	for _, key := range customKeys {
		if err := writeFoldedHeader(&buf, key, msg.Headers[key]); err != nil {
			return nil, fmt.Errorf("failed to write custom header %s: %w", key, err)
		}
	}

	if _, err := buf.WriteString("\r\n"); err != nil {
		return nil, fmt.Errorf("failed to write newline after headers: %w", err)
	}

	multipartWriter := multipart.NewWriter(&buf)
	if err := multipartWriter.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("failed to write multipart boundary: %w", err)
	}

	if err := writeBody(multipartWriter, "alt-"+boundary, msg); err != nil {
		return nil, err
	}

	for _, attachment := range msg.Attachments {
		data, err := os.ReadFile(attachment)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}

		if err = writeAttachment(&buf, boundary, attachment, data); err != nil {
			return nil, err
		}
	}

	if _, err := buf.WriteString(fmt.Sprintf("\r\n--%s--\r\n", boundary)); err != nil {
		return nil, fmt.Errorf("failed to write final boundary: %w", err)
	}

	return buf.Bytes(), nil
}

func (b *Builder) standardHeaders(msg Message, boundary string) map[string]string {
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}

	headers := map[string]string{
		"From":         msg.From,
		"To":           msg.To,
		"Date":         date.Format(time.RFC1123Z),
		"Subject":      mime.QEncoding.Encode("utf-8", msg.Subject),
		"MIME-Version": "1.0",
		"Content-Type": fmt.Sprintf("multipart/mixed; boundary=\"%s\"", boundary),
	}

	if msg.MessageID != "" {
		headers["Message-ID"] = msg.MessageID
	}

	if msg.ReplyTo != "" && msg.ReplyTo != msg.From {
		headers["Reply-To"] = msg.ReplyTo
	}

	return headers
}

// custom headers cannot override the standard ones
func isStandardHeader(key string) bool {
	for _, standard := range orderedStandardHeaders {
		if strings.EqualFold(key, standard) {
			return true
		}
	}
	return false
}

// writeBody nests the text and html bodies in a multipart/alternative part
// when both are set, so clients show one of them. A single body is written
// directly into the mixed container.
func writeBody(multipartWriter *multipart.Writer, alternativeBoundary string, msg Message) error {
	if msg.Text == "" || msg.HTML == "" {
		if msg.Text != "" {
			return writePart(multipartWriter, "text/plain", msg.Text)
		}
		if msg.HTML != "" {
			return writePart(multipartWriter, "text/html", msg.HTML)
		}
		return nil
	}

	part, err := multipartWriter.CreatePart(textproto.MIMEHeader{
		"Content-Type": []string{fmt.Sprintf("multipart/alternative; boundary=\"%s\"", alternativeBoundary)},
	})
	if err != nil {
		return fmt.Errorf("failed to create alternative part: %w", err)
	}

	alternativeWriter := multipart.NewWriter(part)
	if err := alternativeWriter.SetBoundary(alternativeBoundary); err != nil {
		return fmt.Errorf("failed to write alternative boundary: %w", err)
	}

	if err := writePart(alternativeWriter, "text/plain", msg.Text); err != nil {
		return err
	}
	if err := writePart(alternativeWriter, "text/html", msg.HTML); err != nil {
		return err
	}

	if err := alternativeWriter.Close(); err != nil {
		return fmt.Errorf("failed to close alternative part: %w", err)
	}
	return nil
}

func writePart(multipartWriter *multipart.Writer, contentType, body string) error {
	headers := textproto.MIMEHeader{
		"Content-Type":              []string{fmt.Sprintf("%s; charset=utf-8", contentType)},
		"Content-Transfer-Encoding": []string{"quoted-printable"},
	}

	part, err := multipartWriter.CreatePart(headers)
	if err != nil {
		return fmt.Errorf("failed to create part: %w", err)
	}

	writer := quotedprintable.NewWriter(part)
	if _, err = writer.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to write part body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close quoted-printable writer: %w", err)
	}

	if _, err = part.Write([]byte("\r\n")); err != nil {
		return fmt.Errorf("failed to write blank line after part: %w", err)
	}

	return nil
}
