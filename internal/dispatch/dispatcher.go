package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"campaign-mailer/internal/mail"
)

type transport interface {
	Send(ctx context.Context, envelope mail.Envelope) (mail.Receipt, error)
}

type recorder interface {
	ObserveOutcome(success bool)
	ObserveBatch(size int, elapsed time.Duration)
}

type Config struct {
	BatchSize int
	Delay     time.Duration
	Tags      []string
	Metadata  map[string]string
	// Text is an optional plain-text body sent alongside html.
	Text string
	// Attachments are file paths added to every message.
	Attachments []string
}

// Outcome is the result of one send attempt. Reason is set only when Success is false.
type Outcome struct {
	Recipient string
	Success   bool
	MessageID string
	Response  string
	Reason    string
}

// Result aggregates a dispatch run. Outcomes[i] belongs to the i-th recipient
// passed to Dispatch, and Total == Successful + Failed == len(Outcomes).
type Result struct {
	Total      int
	Successful int
	Failed     int
	Batches    int
	Delays     int
	Outcomes   []Outcome
}

type Dispatcher struct {
	transport transport
	recorder  recorder
	logger    *slog.Logger
	wait      func(ctx context.Context, d time.Duration) error
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithRecorder(r recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

func New(t transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: t,
		recorder:  nopRecorder{},
		logger:    slog.With("component", "dispatcher"),
		wait:      sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends html to every recipient, batchSize at a time, pausing cfg.Delay
// between batches. Send failures are recorded as outcomes and never stop the run.
// When ctx is done, recipients that were not attempted are recorded as failures.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []string, subject, html string, cfg Config) *Result {
	batchSize := max(cfg.BatchSize, 1)
	delay := max(cfg.Delay, 0)

	result := &Result{
		Total:    len(recipients),
		Outcomes: make([]Outcome, 0, len(recipients)),
	}

	d.logger.Info(fmt.Sprintf("sending to %d recipients in batches of %d", len(recipients), batchSize))

	for start := 0; start < len(recipients); start += batchSize {
		if err := ctx.Err(); err != nil {
			d.logger.Warn(fmt.Sprintf("dispatch interrupted before batch %d: %v", result.Batches+1, err))
			result.Outcomes = append(result.Outcomes, abandon(recipients[start:], err)...)
			break
		}

		end := min(start+batchSize, len(recipients))
		batch := recipients[start:end]

		startedAt := time.Now()
		result.Outcomes = append(result.Outcomes, d.sendBatch(ctx, batch, subject, html, cfg)...)
		result.Batches++
		d.recorder.ObserveBatch(len(batch), time.Since(startedAt))
		d.logger.Info(fmt.Sprintf("batch %d sent (%d/%d)", result.Batches, end, len(recipients)))

		if end < len(recipients) {
			result.Delays++
			if err := d.wait(ctx, delay); err != nil {
				d.logger.Warn(fmt.Sprintf("dispatch interrupted after batch %d: %v", result.Batches, err))
				result.Outcomes = append(result.Outcomes, abandon(recipients[end:], err)...)
				break
			}
		}
	}

	for _, o := range result.Outcomes {
		if o.Success {
			result.Successful++
		}
	}
	result.Failed = result.Total - result.Successful

	return result
}

func (d *Dispatcher) sendBatch(ctx context.Context, batch []string, subject, html string, cfg Config) []Outcome {
	outcomes := make([]Outcome, len(batch))

	var g errgroup.Group
	for i, recipient := range batch {
		i, recipient := i, recipient
		g.Go(func() error {
			outcomes[i] = d.sendOne(ctx, mail.Envelope{
				To:          recipient,
				Subject:     subject,
				HTML:        html,
				Text:        cfg.Text,
				Tags:        cfg.Tags,
				Metadata:    cfg.Metadata,
				Attachments: cfg.Attachments,
			})
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (d *Dispatcher) sendOne(ctx context.Context, envelope mail.Envelope) (outcome Outcome) {
	outcome.Recipient = envelope.To

	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{Recipient: envelope.To, Reason: fmt.Sprintf("transport panic: %v", r)}
		}
		if !outcome.Success {
			d.logger.Warn(fmt.Sprintf("failed to send, error: %s", outcome.Reason), "recipient", envelope.To)
		}
		d.recorder.ObserveOutcome(outcome.Success)
	}()

	receipt, err := d.transport.Send(ctx, envelope)
	if err != nil {
		outcome.Reason = err.Error()
		return outcome
	}

	outcome.Success = true
	outcome.MessageID = receipt.MessageID
	outcome.Response = receipt.Response
	return outcome
}

func abandon(recipients []string, err error) []Outcome {
	outcomes := make([]Outcome, len(recipients))
	for i, recipient := range recipients {
		outcomes[i] = Outcome{Recipient: recipient, Reason: err.Error()}
	}
	return outcomes
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(bool) {}

func (nopRecorder) ObserveBatch(int, time.Duration) {}
