package mailchimp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type ListStats struct {
	Subscribed   int
	Unsubscribed int
	Cleaned      int
	Total        int
}

type Report struct {
	Opens       int
	UniqueOpens int
	OpenRate    float64
	Clicks      int
	ClickRate   float64
}

type listResponse struct {
	Stats struct {
		MemberCount      int `json:"member_count"`
		UnsubscribeCount int `json:"unsubscribe_count"`
		CleanedCount     int `json:"cleaned_count"`
	} `json:"stats"`
}

type reportResponse struct {
	Opens struct {
		OpensTotal  int     `json:"opens_total"`
		UniqueOpens int     `json:"unique_opens"`
		OpenRate    float64 `json:"open_rate"`
	} `json:"opens"`
	Clicks struct {
		ClicksTotal int     `json:"clicks_total"`
		ClickRate   float64 `json:"click_rate"`
	} `json:"clicks"`
}

// ListStats returns audience counts. Total covers every status, not only subscribed members.
func (c *Client) ListStats(ctx context.Context) (*ListStats, error) {
	var list listResponse
	if err := c.do(ctx, http.MethodGet, "/lists/"+url.PathEscape(c.cfg.ListID), nil, &list); err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}

	stats := &ListStats{
		Subscribed:   list.Stats.MemberCount,
		Unsubscribed: list.Stats.UnsubscribeCount,
		Cleaned:      list.Stats.CleanedCount,
	}
	stats.Total = stats.Subscribed + stats.Unsubscribed + stats.Cleaned

	return stats, nil
}

func (c *Client) Report(ctx context.Context, campaignID string) (*Report, error) {
	var report reportResponse
	if err := c.do(ctx, http.MethodGet, "/reports/"+url.PathEscape(campaignID), nil, &report); err != nil {
		return nil, fmt.Errorf("get campaign report: %w", err)
	}

	return &Report{
		Opens:       report.Opens.OpensTotal,
		UniqueOpens: report.Opens.UniqueOpens,
		OpenRate:    report.Opens.OpenRate,
		Clicks:      report.Clicks.ClicksTotal,
		ClickRate:   report.Clicks.ClickRate,
	}, nil
}
