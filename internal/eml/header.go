package eml

import (
	"fmt"
	"io"
	"strings"
)

const (
	maxHeaderLine = 998
	foldAt        = 76
)

var unfoldableHeaders = []string{
	"From", "To", "Cc", "Bcc", "Reply-To", "Sender", "Message-ID",
	"Content-Type", "Content-Disposition", "Content-Transfer-Encoding",
}

func canFoldHeader(key string) bool {
	for _, header := range unfoldableHeaders {
		if strings.EqualFold(key, header) {
			return false
		}
	}
	return true
}

// writeFoldedHeader writes a header line folded at spaces so that lines stay
// within 76 characters where possible. Words longer than that are never split,
// and address and MIME headers are never folded.
func writeFoldedHeader(target io.Writer, key, value string) error {
	if maxValueLen := maxHeaderLine - len(key) - 2; len(value) > maxValueLen && maxValueLen > 0 {
		value = value[:maxValueLen]
	}

	if !canFoldHeader(key) || len(key)+2+len(value) <= foldAt {
		_, err := fmt.Fprintf(target, "%s: %s\r\n", key, value)
		return err
	}

	var folded strings.Builder
	current := key + ":"
	for i, word := range strings.Split(value, " ") {
		if i > 0 && len(current)+1+len(word) > foldAt {
			folded.WriteString(current + "\r\n")
			current = ""
		}
		current += " " + word
	}
	folded.WriteString(current + "\r\n")

	_, err := io.WriteString(target, folded.String())
	return err
}
