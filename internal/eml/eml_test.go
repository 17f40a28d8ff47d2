//go:build unit

package eml

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedBuilder() *Builder {
	return &Builder{boundary: func() string { return "b0undary" }}
}

func TestBuildPlainMessage(t *testing.T) {
	raw, err := fixedBuilder().Build(Message{
		MessageID: "<id-1@example.com>",
		From:      "Events <events@example.com>",
		ReplyTo:   "help@example.com",
		To:        "a@x.com",
		Subject:   "Hello",
		HTML:      "<p>hi</p>",
		Text:      "hi",
		Date:      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Headers:   map[string]string{"X-Mailgun-Tag": "spring, bulk", "From": "ignored@x.com"},
	})
	require.NoError(t, err)

	expected := "Message-ID: <id-1@example.com>\r\n" +
		"From: Events <events@example.com>\r\n" +
		"Reply-To: help@example.com\r\n" +
		"To: a@x.com\r\n" +
		"Date: Sat, 01 Mar 2025 10:00:00 +0000\r\n" +
		"Subject: Hello\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"b0undary\"\r\n" +
		"X-Mailgun-Tag: spring, bulk\r\n" +
		"\r\n" +
		"--b0undary\r\n" +
		"Content-Type: multipart/alternative; boundary=\"alt-b0undary\"\r\n" +
		"\r\n" +
		"--alt-b0undary\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"hi\r\n" +
		"\r\n--alt-b0undary\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>hi</p>\r\n" +
		"\r\n--alt-b0undary--\r\n" +
		"\r\n--b0undary--\r\n"

	assert.Equal(t, expected, string(raw))
}

func TestBuildNestsBodiesInAlternativeBesideAttachments(t *testing.T) {
	ics := filepath.Join(t.TempDir(), "invite.ics")
	require.NoError(t, os.WriteFile(ics, []byte("BEGIN:VCALENDAR"), 0o600))

	raw, err := NewBuilder().Build(Message{
		From:        "a@x.com",
		To:          "b@x.com",
		Text:        "# Hi [x](y)",
		HTML:        "<h1>Hi</h1>",
		Attachments: []string{ics},
	})
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	mixed := multipart.NewReader(parsed.Body, params["boundary"])
	var topLevel []string
	var alternatives []string
	for {
		part, err := mixed.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		partType, partParams, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		require.NoError(t, err)
		topLevel = append(topLevel, partType)

		if partType != "multipart/alternative" {
			continue
		}
		alternative := multipart.NewReader(part, partParams["boundary"])
		for {
			body, err := alternative.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			bodyType, _, err := mime.ParseMediaType(body.Header.Get("Content-Type"))
			require.NoError(t, err)
			alternatives = append(alternatives, bodyType)
		}
	}

	assert.Equal(t, []string{"multipart/alternative", "text/calendar"}, topLevel)
	assert.Equal(t, []string{"text/plain", "text/html"}, alternatives)
}

func TestBuildWritesSingleBodyWithoutAlternative(t *testing.T) {
	raw, err := fixedBuilder().Build(Message{From: "a@x.com", To: "b@x.com", HTML: "<p>x</p>"})
	require.NoError(t, err)

	body := string(raw)
	assert.NotContains(t, body, "multipart/alternative")
	assert.Contains(t, body, "--b0undary\r\nContent-Transfer-Encoding: quoted-printable\r\nContent-Type: text/html; charset=utf-8\r\n")
}

func TestBuildOmitsReplyToEqualToFrom(t *testing.T) {
	raw, err := fixedBuilder().Build(Message{From: "a@x.com", ReplyTo: "a@x.com", To: "b@x.com", HTML: "x"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Reply-To")
	assert.NotContains(t, string(raw), "Message-ID")
}

func TestBuildEncodesNonASCIISubject(t *testing.T) {
	raw, err := fixedBuilder().Build(Message{From: "a@x.com", To: "b@x.com", Subject: "Città", HTML: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: =?utf-8?q?Citt=C3=A0?=\r\n")
}

func TestBuildWithAttachment(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(png, append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 120)...), 0o600))

	raw, err := fixedBuilder().Build(Message{From: "a@x.com", To: "b@x.com", HTML: "x", Attachments: []string{png}})
	require.NoError(t, err)

	body := string(raw)
	assert.Contains(t, body, "Content-Disposition: attachment; filename=\"logo.png\"\r\n")
	assert.Contains(t, body, "Content-Type: image/png\r\n")
	assert.Contains(t, body, "Content-Transfer-Encoding: base64\r\n")
	assert.True(t, strings.HasSuffix(body, "\r\n--b0undary--\r\n"))

	for _, line := range strings.Split(body, "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}
}

func TestBuildWithMissingAttachment(t *testing.T) {
	_, err := fixedBuilder().Build(Message{From: "a@x.com", To: "b@x.com", Attachments: []string{"testdata/missing.pdf"}})
	assert.ErrorContains(t, err, "failed to read attachment")
}

func TestDetectMIMEFallsBackToExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invite.ics")
	require.NoError(t, os.WriteFile(path, []byte("BEGIN:VCALENDAR"), 0o600))

	mimeType, err := DetectMIME(path)
	require.NoError(t, err)
	assert.Equal(t, "text/calendar", mimeType)
}

func TestWriteFoldedHeader(t *testing.T) {
	var buf bytes.Buffer
	value := strings.Repeat("word ", 30)

	require.NoError(t, writeFoldedHeader(&buf, "X-Long", strings.TrimSpace(value)))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\r\n"), "\r\n")
	assert.Greater(t, len(lines), 1)
	for i, line := range lines {
		assert.LessOrEqual(t, len(line), 76)
		if i > 0 {
			assert.True(t, strings.HasPrefix(line, " "))
		}
	}
}

func TestWriteFoldedHeaderKeepsAddressHeadersOnOneLine(t *testing.T) {
	var buf bytes.Buffer
	value := strings.Repeat("a", 90) + "@x.com"

	require.NoError(t, writeFoldedHeader(&buf, "To", value))
	assert.Equal(t, "To: "+value+"\r\n", buf.String())
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("Events <events@example.com>")
	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@example.com>"))
	assert.NotEqual(t, id, NewMessageID("events@example.com"))
}
