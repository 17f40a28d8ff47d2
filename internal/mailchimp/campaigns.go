package mailchimp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type Campaign struct {
	ID     string `json:"id"`
	WebID  int    `json:"web_id"`
	Status string `json:"status"`
}

type campaignRecipients struct {
	ListID string `json:"list_id"`
}

type campaignSettings struct {
	SubjectLine string `json:"subject_line"`
	PreviewText string `json:"preview_text,omitempty"`
	Title       string `json:"title"`
	FromName    string `json:"from_name"`
	ReplyTo     string `json:"reply_to"`
	ToName      string `json:"to_name"`
	AutoFooter  bool   `json:"auto_footer"`
	InlineCSS   bool   `json:"inline_css"`
}

type campaignTracking struct {
	Opens           bool   `json:"opens"`
	HTMLClicks      bool   `json:"html_clicks"`
	TextClicks      bool   `json:"text_clicks"`
	GoalTracking    bool   `json:"goal_tracking"`
	GoogleAnalytics string `json:"google_analytics,omitempty"`
}

type createCampaignRequest struct {
	Type       string             `json:"type"`
	Recipients campaignRecipients `json:"recipients"`
	Settings   campaignSettings   `json:"settings"`
	Tracking   campaignTracking   `json:"tracking"`
}

type testEmailRequest struct {
	TestEmails []string `json:"test_emails"`
	SendType   string   `json:"send_type"`
}

// CreateCampaign creates a regular campaign for the configured list and uploads its HTML content.
func (c *Client) CreateCampaign(ctx context.Context, subject, html string, now time.Time) (*Campaign, error) {
	request := createCampaignRequest{
		Type:       "regular",
		Recipients: campaignRecipients{ListID: c.cfg.ListID},
		Settings: campaignSettings{
			SubjectLine: subject,
			PreviewText: c.cfg.PreviewText,
			Title:       fmt.Sprintf("%s - %s", c.cfg.Title, now.UTC().Format(time.RFC3339)),
			FromName:    c.cfg.FromName,
			ReplyTo:     c.cfg.ReplyTo,
			ToName:      "*|FNAME|*",
			InlineCSS:   true,
		},
		Tracking: campaignTracking{
			Opens:           true,
			HTMLClicks:      true,
			TextClicks:      true,
			GoalTracking:    true,
			GoogleAnalytics: c.cfg.GoogleAnalytics,
		},
	}

	var campaign Campaign
	if err := c.do(ctx, http.MethodPost, "/campaigns", request, &campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	if err := c.SetContent(ctx, campaign.ID, html); err != nil {
		return nil, err
	}

	return &campaign, nil
}

func (c *Client) SetContent(ctx context.Context, campaignID, html string) error {
	body := map[string]string{"html": html}
	if err := c.do(ctx, http.MethodPut, "/campaigns/"+url.PathEscape(campaignID)+"/content", body, nil); err != nil {
		return fmt.Errorf("set campaign content: %w", err)
	}
	return nil
}

// SendTest sends the campaign to the given test addresses. An empty list is a no-op.
func (c *Client) SendTest(ctx context.Context, campaignID string, emails []string) error {
	if len(emails) == 0 {
		return nil
	}

	request := testEmailRequest{TestEmails: emails, SendType: "html"}
	if err := c.do(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(campaignID)+"/actions/test", request, nil); err != nil {
		return fmt.Errorf("send test email: %w", err)
	}
	return nil
}

func (c *Client) Send(ctx context.Context, campaignID string) error {
	if err := c.do(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(campaignID)+"/actions/send", nil, nil); err != nil {
		return fmt.Errorf("send campaign: %w", err)
	}
	return nil
}
