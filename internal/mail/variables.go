package mail

import (
	"encoding/json"
	"strings"
	"time"
)

// TagList joins tags the way Mailgun expects them in X-Mailgun-Tag.
func TagList(tags []string) string {
	return strings.Join(tags, ", ")
}

// Variables serializes metadata plus a send timestamp for X-Mailgun-Variables.
func Variables(metadata map[string]string, now time.Time) (string, error) {
	vars := make(map[string]string, len(metadata)+1)
	for key, value := range metadata {
		vars[key] = value
	}
	vars["timestamp"] = now.UTC().Format(time.RFC3339Nano)

	raw, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
