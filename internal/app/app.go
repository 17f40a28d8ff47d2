package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"campaign-mailer/internal/console"
	"campaign-mailer/internal/dispatch"
	"campaign-mailer/internal/healthcheck"
	"campaign-mailer/internal/journal"
	"campaign-mailer/internal/mail"
	"campaign-mailer/internal/mailchimp"
	"campaign-mailer/internal/metrics"
	"campaign-mailer/internal/render"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrSendFailed    = errors.New("failed to send email")
)

const systemMetricsInterval = 5 * time.Second

type transport interface {
	Send(ctx context.Context, envelope mail.Envelope) (mail.Receipt, error)
}

type verifier interface {
	Verify(ctx context.Context) error
}

type campaignClient interface {
	ListStats(ctx context.Context) (*mailchimp.ListStats, error)
	CreateCampaign(ctx context.Context, subject, html string, now time.Time) (*mailchimp.Campaign, error)
	SendTest(ctx context.Context, campaignID string, emails []string) error
	Send(ctx context.Context, campaignID string) error
	Report(ctx context.Context, campaignID string) (*mailchimp.Report, error)
}

type outcomeRecorder interface {
	Record(ctx context.Context, run journal.Run, outcomes []dispatch.Outcome) error
}

type App struct {
	cfg       configProvider
	transport transport
	templates fs.FS
	renderer  *render.Renderer
	metrics   *metrics.Metrics
	console   *console.Console
	logger    *slog.Logger
	redis     *redis.Client
	journal   outcomeRecorder
	campaigns campaignClient
	wait      func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

type Option func(*App)

func WithConsole(c *console.Console) Option {
	return func(a *App) {
		a.console = c
	}
}

func WithTemplates(templates fs.FS) Option {
	return func(a *App) {
		a.templates = templates
	}
}

func WithTransport(t transport) Option {
	return func(a *App) {
		a.transport = t
	}
}

func WithCampaignClient(c campaignClient) Option {
	return func(a *App) {
		a.campaigns = c
	}
}

func WithJournal(j outcomeRecorder) Option {
	return func(a *App) {
		a.journal = j
	}
}

func New(ctx context.Context, cp configProvider, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cp,
		metrics: metrics.New(),
		console: console.New(os.Stdout, true),
		logger:  slog.With("component", "app"),
		wait:    sleep,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.templates == nil {
		a.templates = os.DirFS(cp.GetTemplatesDir())
	}
	a.renderer = render.New(a.templates, cp.GetRenderConfig())

	if a.transport == nil {
		t, err := newTransport(ctx, cp)
		if err != nil {
			return nil, err
		}
		a.transport = t
	}

	if redisOpts := cp.GetRedisOptions(); redisOpts != nil {
		a.redis = redis.NewClient(redisOpts)
	}

	if a.journal == nil && cp.GetJournalTable() != "" {
		awsCfg, err := cp.GetAwsConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load aws config: %w", ErrConfiguration, err)
		}
		a.journal = journal.New(dynamodb.NewFromConfig(awsCfg), cp.GetJournalTable())
	}

	if a.campaigns == nil && cp.GetMailchimpConfig().APIKey != "" {
		a.campaigns = mailchimp.New(cp.GetMailchimpConfig())
	}

	a.verifyTransport(ctx)

	return a, nil
}

// Close releases connections held by the app.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// verifyTransport checks connectivity for transports that support it. Failures
// are only logged: the first send reports the real error.
func (a *App) verifyTransport(ctx context.Context) {
	v, ok := a.transport.(verifier)
	if !ok {
		return
	}

	if err := v.Verify(ctx); err != nil {
		a.logger.Warn(fmt.Sprintf("transport verification failed, error: %s", err))
		return
	}
	a.logger.Info("transport connection verified")
}

func (a *App) defaults(template, subject string) (string, string) {
	if template == "" {
		template = a.cfg.GetDefaultTemplate()
	}
	if subject == "" {
		subject = a.cfg.GetCampaign().Subject
	}
	return template, subject
}

func (a *App) metadata() map[string]string {
	return map[string]string{"campaign": a.cfg.GetCampaign().Name}
}

// render executes the named template with vars and lists the available ones when it does not exist.
func (a *App) render(name string, vars map[string]string) (*render.Result, error) {
	result, err := a.renderer.Execute(name, vars)
	if err == nil {
		return result, nil
	}

	if errors.Is(err, render.ErrTemplateNotFound) {
		if available, listErr := a.renderer.Available(); listErr == nil && len(available) > 0 {
			a.console.List("Available templates:", available)
		}
	}
	return nil, err
}

// confirm gives the operator a window to interrupt before an irreversible send.
func (a *App) confirm(ctx context.Context, window time.Duration) error {
	if window <= 0 {
		return nil
	}

	a.console.Print(console.ColorYellow, "\nStarting in %s. Press Ctrl+C to cancel...", window)
	if err := a.wait(ctx, window); err != nil {
		return fmt.Errorf("sending cancelled: %w", err)
	}
	return nil
}

// monitor serves health and metrics while a long run is in progress.
// The returned func stops the server and waits for it.
func (a *App) monitor(ctx context.Context) func() {
	port := a.cfg.GetMetricsPort()
	if port == 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	server := healthcheck.NewServer(port, a.metrics.Handler())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(ctx); err != nil {
			a.logger.Error(fmt.Sprintf("metrics server failed, error: %s", err))
		}
	}()
	go func() {
		defer wg.Done()
		a.metrics.Collect(ctx, systemMetricsInterval)
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
