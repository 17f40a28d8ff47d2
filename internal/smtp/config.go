package smtp

import "time"

type Config struct {
	Host             string
	Port             int
	Secure           bool
	User             string
	Password         string
	From             string
	ReplyTo          string
	AllowInsecureTls bool
	Timeout          time.Duration
	// Mailgun tracking headers are added when enabled
	Track bool
}
