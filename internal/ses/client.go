package ses

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"campaign-mailer/internal/eml"
	"campaign-mailer/internal/mail"
)

const acceptedResponse = "ses accepted"

// SES only accepts alphanumerics, '_' and '-' in tag names and values.
var tagCharset = regexp.MustCompile(`[^A-Za-z0-9_-]`)

type sesInterface interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

type Config struct {
	From             string
	ReplyTo          string
	ConfigurationSet string
}

type Client struct {
	api     sesInterface
	cfg     Config
	builder *eml.Builder
	now     func() time.Time
}

func NewFromConfig(awsCfg aws.Config, cfg Config) *Client {
	return New(ses.NewFromConfig(awsCfg), cfg)
}

func New(api sesInterface, cfg Config) *Client {
	return &Client{
		api:     api,
		cfg:     cfg,
		builder: eml.NewBuilder(),
		now:     time.Now,
	}
}

func (c *Client) Send(ctx context.Context, envelope mail.Envelope) (mail.Receipt, error) {
	raw, err := c.builder.Build(eml.Message{
		From:        c.cfg.From,
		ReplyTo:     c.cfg.ReplyTo,
		To:          envelope.To,
		Subject:     envelope.Subject,
		HTML:        envelope.HTML,
		Text:        envelope.Text,
		Date:        c.now(),
		Attachments: envelope.Attachments,
	})
	if err != nil {
		return mail.Receipt{}, err
	}

	input := &ses.SendRawEmailInput{
		RawMessage:   &types.RawMessage{Data: raw},
		Destinations: []string{envelope.To},
		Tags:         messageTags(envelope),
	}
	if c.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(c.cfg.ConfigurationSet)
	}

	out, err := c.api.SendRawEmail(ctx, input)
	if err != nil {
		return mail.Receipt{}, fmt.Errorf("ses send raw email: %w", err)
	}

	return mail.Receipt{MessageID: aws.ToString(out.MessageId), Response: acceptedResponse}, nil
}

func messageTags(envelope mail.Envelope) []types.MessageTag {
	var tags []types.MessageTag
	for i, tag := range envelope.Tags {
		tags = append(tags, types.MessageTag{
			Name:  aws.String(fmt.Sprintf("tag_%d", i)),
			Value: aws.String(tagCharset.ReplaceAllString(tag, "_")),
		})
	}
	for key, value := range envelope.Metadata {
		tags = append(tags, types.MessageTag{
			Name:  aws.String(tagCharset.ReplaceAllString(key, "_")),
			Value: aws.String(tagCharset.ReplaceAllString(value, "_")),
		})
	}
	return tags
}
