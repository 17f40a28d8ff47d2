package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"campaign-mailer/internal/app"
	"campaign-mailer/internal/config"
	"campaign-mailer/internal/console"
	"campaign-mailer/internal/locker"
	"campaign-mailer/internal/recipients"
	"campaign-mailer/internal/render"
)

const (
	defaultConfigPath = "config/app.yaml"
	dotEnvPath        = ".env"
)

//go:embed config/app.yaml
var configYamlContent []byte

var runFn = run

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if code := runFn(ctx, os.Args[1:], os.Stdout, os.Stderr); code != 0 {
		cancel()
		os.Exit(code)
	}
}

type options struct {
	configPath  string
	template    string
	subject     string
	bulk        string
	batch       int
	delay       int
	force       bool
	test        bool
	attachments []string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		out := console.New(stderr, colorEnabled())
		out.Error("\nError: %s", err)
		if hint := hintFor(err); hint != "" {
			out.Step("%s", hint)
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "mailer [email]",
		Short: "Send event emails one at a time, in bulk, or as a Mailchimp campaign",
		Example: `  mailer john@example.com
  mailer john@example.com -t reminder -s "Don't forget!"
  mailer --bulk recipients.txt --batch 20 --delay 2000
  mailer --test
  mailer campaign production`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.bulk == "" && !opts.test {
				return cmd.Help()
			}
			if err := validateFlags(cmd, opts); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts, stdout, stderr)
			if err != nil {
				return err
			}
			defer closeApp(a)

			req := app.SendRequest{Template: opts.template, Subject: opts.subject, Attachments: opts.attachments}

			switch {
			case opts.bulk != "":
				_, err = a.SendBulk(cmd.Context(), bulkRequest(cmd, opts))
			case opts.test:
				_, err = a.SendTest(cmd.Context(), req)
			default:
				req.Recipient = args[0]
				_, err = a.SendOne(cmd.Context(), req)
			}
			return err
		},
	}

	persistent := root.PersistentFlags()
	persistent.StringVar(&opts.configPath, "config", "", fmt.Sprintf("config file (default %s, embedded copy as fallback)", defaultConfigPath))
	persistent.StringVarP(&opts.template, "template", "t", "", "template name (default from config)")
	persistent.StringVarP(&opts.subject, "subject", "s", "", "email subject (default from config)")
	persistent.BoolVar(&opts.force, "force", false, "skip the confirmation window")

	flags := root.Flags()
	flags.StringVarP(&opts.bulk, "bulk", "b", "", "send to every address in a newline separated file")
	flags.IntVar(&opts.batch, "batch", 10, "bulk batch size")
	flags.IntVar(&opts.delay, "delay", 1000, "delay between bulk batches in milliseconds")
	flags.BoolVar(&opts.test, "test", false, "send to the configured test address")
	flags.StringArrayVar(&opts.attachments, "attach", nil, "attach a file (repeatable)")

	root.AddCommand(newCampaignCmd(opts, stdout, stderr))

	return root
}

func newCampaignCmd(opts *options, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "campaign [test|production|single]",
		Short: "Create a Mailchimp campaign from a template and send it",
		Long: `Create a Mailchimp campaign from a template, then:
  test        send it to the configured test emails (default)
  production  send it to the whole audience and print the first report
  single      send a tracked copy to the first test email through the transport`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{app.ModeTest, app.ModeProduction, app.ModeSingle},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, stdout, stderr)
			if err != nil {
				return err
			}
			defer closeApp(a)

			req := app.CampaignRequest{Template: opts.template, Subject: opts.subject, Force: opts.force}
			if len(args) > 0 {
				req.Mode = args[0]
			}
			return a.RunCampaign(cmd.Context(), req)
		},
	}
}

func validateFlags(cmd *cobra.Command, opts *options) error {
	if opts.bulk != "" && opts.test {
		return errors.New("--bulk and --test cannot be combined")
	}
	if cmd.Flags().Changed("batch") && opts.batch <= 0 {
		return errors.New("--batch must be a positive number")
	}
	if cmd.Flags().Changed("delay") && opts.delay < 0 {
		return errors.New("--delay must not be negative")
	}
	return nil
}

// bulkRequest leaves batch size and delay to the config unless set on the command line.
func bulkRequest(cmd *cobra.Command, opts *options) app.BulkRequest {
	req := app.BulkRequest{
		File:        opts.bulk,
		Template:    opts.template,
		Subject:     opts.subject,
		Force:       opts.force,
		Attachments: opts.attachments,
	}
	if cmd.Flags().Changed("batch") {
		req.BatchSize = opts.batch
	}
	if cmd.Flags().Changed("delay") {
		delay := time.Duration(opts.delay) * time.Millisecond
		req.Delay = &delay
	}
	return req
}

func newApp(ctx context.Context, opts *options, stdout, stderr io.Writer) (*app.App, error) {
	if err := config.LoadDotEnv(dotEnvPath); err != nil {
		return nil, fmt.Errorf("%w: %w", app.ErrConfiguration, err)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", app.ErrConfiguration, err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.GetLogLevel()})))

	return app.New(ctx, cfg, app.WithConsole(console.New(stdout, colorEnabled())))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.NewFromYaml(path)
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return config.NewFromYaml(defaultConfigPath)
	}
	return config.NewFromYamlContent(configYamlContent)
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		slog.Warn(fmt.Sprintf("failed to close app, error: %s", err))
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, recipients.ErrInvalidAddress):
		return "Usage: mailer <email> [-t template] [-s subject]"
	case errors.Is(err, render.ErrTemplateNotFound):
		return "Use -t with one of the available templates."
	case errors.Is(err, locker.ErrLocked):
		return "Another bulk run for this file is in progress."
	case errors.Is(err, app.ErrConfiguration):
		return "Check the config file and the environment variables it references."
	default:
		return ""
	}
}

func colorEnabled() bool {
	_, disabled := os.LookupEnv("NO_COLOR")
	return !disabled
}
