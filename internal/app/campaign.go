package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"campaign-mailer/internal/console"
	"campaign-mailer/internal/mail"
)

// Mailchimp merge tags filled in per subscriber.
const (
	unsubscribeMergeTag = "*|UNSUB|*"
	preferencesMergeTag = "*|UPDATE_PROFILE|*"
)

// Markdown link destinations come out of the renderer with | percent-encoded.
var escapedMergeTag = regexp.MustCompile(`\*%7C([A-Z0-9_:]+)%7C\*`)

const (
	ModeTest       = "test"
	ModeProduction = "production"
	ModeSingle     = "single"
)

type CampaignRequest struct {
	Mode     string
	Template string
	Subject  string
	Force    bool
}

// RunCampaign creates a Mailchimp campaign from the template and, depending on
// the mode, sends it to the test list, to the whole audience, or directly
// through the configured transport to the first test address.
func (a *App) RunCampaign(ctx context.Context, req CampaignRequest) error {
	mode := req.Mode
	if mode == "" {
		mode = ModeTest
	}
	if mode != ModeTest && mode != ModeProduction && mode != ModeSingle {
		return fmt.Errorf("%w: unknown campaign mode %q", ErrConfiguration, mode)
	}
	if a.campaigns == nil {
		return fmt.Errorf("%w: mailchimp api key is not set", ErrConfiguration)
	}

	template, subject := a.defaults(req.Template, req.Subject)

	a.console.Title("Mailchimp campaign")
	a.console.Step("Loading template: %s", template)
	content, err := a.render(template, a.campaignVariables())
	if err != nil {
		return err
	}
	content.HTML = escapedMergeTag.ReplaceAllString(content.HTML, "*|$1|*")

	stats, err := a.campaigns.ListStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch subscriber statistics: %w", err)
	}
	a.console.Print(console.ColorCyan, "\nSubscriber statistics:")
	a.console.Info("   Total subscribers: %d", stats.Total)
	a.console.Info("   Active: %d", stats.Subscribed)
	a.console.Info("   Unsubscribed: %d", stats.Unsubscribed)
	a.console.Info("   Cleaned: %d", stats.Cleaned)

	a.console.Step("Creating Mailchimp campaign...")
	campaign, err := a.campaigns.CreateCampaign(ctx, subject, content.HTML, a.now())
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	a.console.Success("Campaign created with ID: %s", campaign.ID)

	switch mode {
	case ModeProduction:
		err = a.sendProduction(ctx, campaign.ID, req.Force)
	case ModeSingle:
		err = a.sendSingle(ctx, campaign.ID, subject, content.HTML, template)
	default:
		err = a.sendCampaignTest(ctx, campaign.ID)
	}
	if err != nil {
		return err
	}

	a.console.Success("\nCampaign process completed successfully!")
	return nil
}

// campaignVariables points the unsubscribe and preferences links at Mailchimp merge tags.
func (a *App) campaignVariables() map[string]string {
	vars := a.cfg.GetVariables()
	vars["UNSUBSCRIBE_URL"] = unsubscribeMergeTag
	vars["PREFERENCES_URL"] = preferencesMergeTag
	return vars
}

func (a *App) sendCampaignTest(ctx context.Context, campaignID string) error {
	emails := a.cfg.GetMailchimpTestEmails()
	if len(emails) == 0 {
		return fmt.Errorf("%w: mailchimp test emails are not set", ErrConfiguration)
	}

	a.console.Step("Sending test emails...")
	if err := a.campaigns.SendTest(ctx, campaignID, emails); err != nil {
		return fmt.Errorf("failed to send test emails: %w", err)
	}
	a.console.Success("Test emails sent to: %s", strings.Join(emails, ", "))
	a.console.Info("To send to all subscribers, run: mailer campaign production")
	return nil
}

func (a *App) sendProduction(ctx context.Context, campaignID string, force bool) error {
	a.console.Print(console.ColorRed, "\nPRODUCTION MODE - sending to all subscribers")
	if !force {
		if err := a.confirm(ctx, a.cfg.GetConfirmWindow()); err != nil {
			return err
		}
	}

	a.console.Step("Sending campaign to all subscribers...")
	if err := a.campaigns.Send(ctx, campaignID); err != nil {
		return fmt.Errorf("failed to send campaign: %w", err)
	}
	a.console.Success("Campaign sent successfully!")

	delay := a.cfg.GetReportDelay()
	a.console.Info("Waiting %s before fetching the initial report...", delay)
	if err := a.wait(ctx, delay); err != nil {
		a.logger.Warn(fmt.Sprintf("report skipped, error: %s", err))
		return nil
	}

	report, err := a.campaigns.Report(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to fetch campaign report: %w", err)
	}
	a.console.Print(console.ColorCyan, "\nInitial campaign report:")
	a.console.Info("   Unique opens: %d", report.UniqueOpens)
	a.console.Info("   Open rate: %.2f%%", report.OpenRate*100)
	a.console.Info("   Click rate: %.2f%%", report.ClickRate*100)
	return nil
}

// sendSingle bypasses Mailchimp delivery and sends a tracked copy through the transport.
func (a *App) sendSingle(ctx context.Context, campaignID, subject, html, template string) error {
	recipient := a.cfg.GetCampaign().TestEmail
	if emails := a.cfg.GetMailchimpTestEmails(); len(emails) > 0 {
		recipient = emails[0]
	}
	if recipient == "" {
		return fmt.Errorf("%w: no test address for a single send", ErrConfiguration)
	}

	tracker := a.cfg.GetTracker()
	html = tracker.AddTrackingPixel(html, campaignID)
	html = tracker.WrapLinks(html, campaignID)

	a.console.Step("Sending single email to: %s", recipient)
	receipt, err := a.transport.Send(ctx, mail.Envelope{
		To:       recipient,
		Subject:  subject,
		HTML:     html,
		Tags:     []string{a.cfg.GetCampaign().Tag, "campaign", template},
		Metadata: a.metadata(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	a.console.Success("Single email sent successfully! Message ID: %s", receipt.MessageID)
	return nil
}
