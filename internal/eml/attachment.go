package eml

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

func mimeFromKnownExtension(extension string) string {
	switch strings.ToLower(extension) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".txt":
		return "text/plain"
	case ".ics":
		return "text/calendar"
	default:
		return "application/octet-stream"
	}
}

// DetectMIME sniffs the file header and falls back to the extension.
func DetectMIME(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	head := make([]byte, 261)
	n, err := file.Read(head)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("error reading file: %w", err)
	}

	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown {
		return mimeFromKnownExtension(filepath.Ext(path)), nil
	}

	return kind.MIME.Value, nil
}

type lineBreakWriter struct {
	w           io.Writer
	lineLength  int
	currentLine int
}

func newLineBreakWriter(w io.Writer, lineLength int) *lineBreakWriter {
	return &lineBreakWriter{w: w, lineLength: lineLength}
}

func (lbw *lineBreakWriter) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		if lbw.currentLine >= lbw.lineLength {
			if _, err := lbw.w.Write([]byte("\r\n")); err != nil {
				return n, err
			}
			lbw.currentLine = 0
		}

		toWrite := min(lbw.lineLength-lbw.currentLine, len(p))

		written, err := lbw.w.Write(p[:toWrite])
		n += written
		lbw.currentLine += written
		p = p[toWrite:]

		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func writeAttachment(target io.Writer, boundary string, path string, data []byte) error {
	mimeType, err := DetectMIME(path)
	if err != nil {
		return fmt.Errorf("failed to detect file mime type: %w", err)
	}

	if _, err := fmt.Fprintf(target, "\r\n--%s\r\n", boundary); err != nil {
		return fmt.Errorf("failed to write boundary: %w", err)
	}

	headers := [][2]string{
		{"Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filepath.Base(path))},
		{"Content-Type", mimeType},
		{"Content-Transfer-Encoding", "base64"},
	}
	for _, header := range headers {
		if err := writeFoldedHeader(target, header[0], header[1]); err != nil {
			return fmt.Errorf("failed to write %s header: %w", header[0], err)
		}
	}

	if _, err := io.WriteString(target, "\r\n"); err != nil {
		return fmt.Errorf("failed to write newline after attachment headers: %w", err)
	}

	encoder := base64.NewEncoder(base64.StdEncoding, newLineBreakWriter(target, 76))
	if _, err = encoder.Write(data); err != nil {
		return fmt.Errorf("failed to write attachment data: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close base64 encoder: %w", err)
	}

	return nil
}
