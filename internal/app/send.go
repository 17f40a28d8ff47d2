package app

import (
	"context"
	"fmt"

	"campaign-mailer/internal/mail"
	"campaign-mailer/internal/recipients"
)

// SendRequest describes a single ad-hoc send. Empty Template and Subject fall
// back to the configured defaults.
type SendRequest struct {
	Recipient   string
	Template    string
	Subject     string
	Attachments []string
}

func (a *App) SendOne(ctx context.Context, req SendRequest) (mail.Receipt, error) {
	if err := recipients.Validate(req.Recipient); err != nil {
		return mail.Receipt{}, err
	}

	template, subject := a.defaults(req.Template, req.Subject)

	a.console.Step("Loading template: %s", template)
	content, err := a.render(template, a.cfg.GetVariables())
	if err != nil {
		return mail.Receipt{}, err
	}

	a.console.Step("Sending to %s...", req.Recipient)
	receipt, err := a.transport.Send(ctx, mail.Envelope{
		To:          req.Recipient,
		Subject:     subject,
		HTML:        content.HTML,
		Text:        content.Text,
		Tags:        []string{a.cfg.GetCampaign().Tag, "registration", template},
		Metadata:    a.metadata(),
		Attachments: req.Attachments,
	})
	if err != nil {
		a.console.Error("Failed to send email to %s: %s", req.Recipient, err)
		return mail.Receipt{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	a.console.Success("Email sent successfully!")
	a.console.Info("Message ID: %s", receipt.MessageID)
	a.console.Info("Response: %s", receipt.Response)

	return receipt, nil
}

// SendTest sends the template to the configured campaign test address.
func (a *App) SendTest(ctx context.Context, req SendRequest) (mail.Receipt, error) {
	req.Recipient = a.cfg.GetCampaign().TestEmail
	if req.Recipient == "" {
		return mail.Receipt{}, fmt.Errorf("%w: campaign test email is not set", ErrConfiguration)
	}

	a.console.Title("Test email")
	return a.SendOne(ctx, req)
}
