package render

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// Tracker rewrites HTML for Mailchimp open and click tracking.
type Tracker struct {
	ServerPrefix string
	UserID       string
}

func (t Tracker) baseURL() string {
	return fmt.Sprintf("https://%s.api.mailchimp.com/track", t.ServerPrefix)
}

// AddTrackingPixel inserts a hidden open-tracking image before the first </body>.
// HTML without a body end tag is returned unchanged.
func (t Tracker) AddTrackingPixel(html, campaignID string) string {
	pixel := fmt.Sprintf(
		`<img src="%s/open.php?u=%s&id=%s" height="1" width="1" style="display:none;">`,
		t.baseURL(), t.UserID, campaignID,
	)
	return strings.Replace(html, "</body>", pixel+"</body>", 1)
}

// WrapLinks routes every href through the click-tracking endpoint, except
// unrendered placeholders and localhost links.
func (t Tracker) WrapLinks(html, campaignID string) string {
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		link := hrefPattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(link, "{{") || strings.HasPrefix(link, "http://localhost") {
			return match
		}

		tracked := fmt.Sprintf("%s/click?u=%s&id=%s&url=%s", t.baseURL(), t.UserID, campaignID, escapeComponent(link))
		return fmt.Sprintf(`href="%s"`, tracked)
	})
}

// componentUnescaper restores the characters encodeURIComponent leaves alone.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func escapeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
