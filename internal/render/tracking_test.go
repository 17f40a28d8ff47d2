//go:build unit

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var tracker = Tracker{ServerPrefix: "us21", UserID: "u123"}

func TestAddTrackingPixel(t *testing.T) {
	out := tracker.AddTrackingPixel("<html><body><p>x</p></body></html>", "c1")

	assert.Equal(t,
		`<html><body><p>x</p><img src="https://us21.api.mailchimp.com/track/open.php?u=u123&id=c1" height="1" width="1" style="display:none;"></body></html>`,
		out,
	)
}

func TestAddTrackingPixelWithoutBody(t *testing.T) {
	assert.Equal(t, "<p>x</p>", tracker.AddTrackingPixel("<p>x</p>", "c1"))
}

func TestWrapLinks(t *testing.T) {
	html := `<a href="https://example.com/a b?x=1&y=2">a</a>` +
		`<a href="{{UNSUBSCRIBE_URL}}">u</a>` +
		`<a href="http://localhost:3000/x">l</a>`

	out := tracker.WrapLinks(html, "c9")

	assert.Equal(t,
		`<a href="https://us21.api.mailchimp.com/track/click?u=u123&id=c9&url=https%3A%2F%2Fexample.com%2Fa%20b%3Fx%3D1%26y%3D2">a</a>`+
			`<a href="{{UNSUBSCRIBE_URL}}">u</a>`+
			`<a href="http://localhost:3000/x">l</a>`,
		out,
	)
}

func TestEscapeComponentMatchesEncodeURIComponent(t *testing.T) {
	cases := map[string]string{
		"https://e.com/a b":          "https%3A%2F%2Fe.com%2Fa%20b",
		"https://e.com/it's(1)!*":    "https%3A%2F%2Fe.com%2Fit's(1)!*",
		"https://e.com/~x-y_z.html":  "https%3A%2F%2Fe.com%2F~x-y_z.html",
		"https://e.com/?q=%2A&r=a+b": "https%3A%2F%2Fe.com%2F%3Fq%3D%252A%26r%3Da%2Bb",
		"*|UNSUB|*":                  "*%7CUNSUB%7C*",
	}

	for input, expected := range cases {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, expected, escapeComponent(input))
		})
	}
}

func TestWrapLinksKeepsEncodeURIComponentSafeCharacters(t *testing.T) {
	out := tracker.WrapLinks(`<a href="https://e.com/event(2026)!">a</a>`, "c9")

	assert.Equal(t,
		`<a href="https://us21.api.mailchimp.com/track/click?u=u123&id=c9&url=https%3A%2F%2Fe.com%2Fevent(2026)!">a</a>`,
		out,
	)
}
