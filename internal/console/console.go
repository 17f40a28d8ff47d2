package console

import (
	"fmt"
	"io"
	"strings"

	"campaign-mailer/internal/dispatch"
)

const (
	ColorReset  = "\033[0m"
	ColorBright = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
)

const rule = "----------------------------------------"

// Console writes user-facing progress lines, optionally colored.
type Console struct {
	out   io.Writer
	color bool
}

func New(out io.Writer, color bool) *Console {
	return &Console{out: out, color: color}
}

func (c *Console) Print(color string, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if c.color && color != "" {
		message = color + message + ColorReset
	}
	_, _ = fmt.Fprintln(c.out, message)
}

func (c *Console) Title(title string) {
	c.Print(ColorCyan, "\n%s", title)
	c.Print(ColorCyan, rule)
}

func (c *Console) Info(format string, args ...any) {
	c.Print(ColorBlue, format, args...)
}

func (c *Console) Step(format string, args ...any) {
	c.Print(ColorYellow, format, args...)
}

func (c *Console) Success(format string, args ...any) {
	c.Print(ColorGreen, format, args...)
}

func (c *Console) Error(format string, args ...any) {
	c.Print(ColorRed, format, args...)
}

// List prints one bullet per item under a heading.
func (c *Console) List(heading string, items []string) {
	c.Print(ColorYellow, "\n%s", heading)
	for _, item := range items {
		c.Print(ColorGreen, "  * %s", item)
	}
}

func (c *Console) Summary(result *dispatch.Result) {
	failedColor := ColorGreen
	if result.Failed > 0 {
		failedColor = ColorRed
	}

	c.Success("\nBulk sending completed!")
	c.Print(ColorCyan, "Results:")
	c.Print(ColorBlue, "   * Total: %d", result.Total)
	c.Print(ColorGreen, "   * Successful: %d", result.Successful)
	c.Print(failedColor, "   * Failed: %d", result.Failed)

	var failures []string
	for _, outcome := range result.Outcomes {
		if !outcome.Success {
			failures = append(failures, fmt.Sprintf("%s: %s", outcome.Recipient, outcome.Reason))
		}
	}
	if len(failures) > 0 {
		c.Print(ColorRed, "Failures:\n   %s", strings.Join(failures, "\n   "))
	}
}
