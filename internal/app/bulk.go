package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"campaign-mailer/internal/dispatch"
	"campaign-mailer/internal/journal"
	"campaign-mailer/internal/locker"
	"campaign-mailer/internal/recipients"
)

// BulkRequest describes a bulk run over a recipients file. A zero BatchSize and
// a nil Delay take the configured values.
type BulkRequest struct {
	File        string
	Template    string
	Subject     string
	BatchSize   int
	Delay       *time.Duration
	Force       bool
	Attachments []string
}

// SendBulk dispatches the rendered template to every address in the file. Send
// failures are reported in the result; an error means the run did not happen
// or was cut short before dispatching.
func (a *App) SendBulk(ctx context.Context, req BulkRequest) (*dispatch.Result, error) {
	list, err := recipients.ReadFile(req.File)
	if err != nil {
		return nil, err
	}

	template, subject := a.defaults(req.Template, req.Subject)

	content, err := a.render(template, a.cfg.GetVariables())
	if err != nil {
		return nil, err
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = a.cfg.GetBatchSize()
	}
	delay := a.cfg.GetDelay()
	if req.Delay != nil {
		delay = *req.Delay
	}

	lock, err := locker.New(a.cfg.GetLockConfig(), a.redis, req.File)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := lock.TryLock(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn(fmt.Sprintf("failed to release lock, error: %s", err))
		}
	}()

	a.console.Title("Bulk email sending")
	a.console.Info("Recipients: %d", len(list))
	a.console.Info("Template: %s", template)
	a.console.Info("Subject: %s", subject)
	a.console.Info("Batch size: %d", batchSize)
	a.console.Info("Delay between batches: %dms", delay.Milliseconds())

	if !req.Force {
		if err := a.confirm(ctx, a.cfg.GetConfirmWindow()); err != nil {
			return nil, err
		}
	}

	stop := a.monitor(ctx)
	defer stop()

	run := journal.Run{ID: uuid.NewString(), Template: template, Subject: subject}
	logger := a.logger.With("run", run.ID)

	a.metrics.RunStarted()
	defer a.metrics.RunFinished()

	dispatcher := dispatch.New(a.transport,
		dispatch.WithLogger(slog.With("component", "dispatcher", "run", run.ID)),
		dispatch.WithRecorder(a.metrics),
	)
	result := dispatcher.Dispatch(ctx, list, subject, content.HTML, dispatch.Config{
		BatchSize:   batchSize,
		Delay:       delay,
		Tags:        []string{a.cfg.GetCampaign().Tag, "bulk", template},
		Metadata:    a.metadata(),
		Text:        content.Text,
		Attachments: req.Attachments,
	})

	a.console.Summary(result)

	if a.journal != nil {
		if err := a.journal.Record(context.WithoutCancel(ctx), run, result.Outcomes); err != nil {
			logger.Error(fmt.Sprintf("failed to record delivery journal, error: %s", err))
		} else {
			logger.Info(fmt.Sprintf("recorded %d outcomes in the delivery journal", len(result.Outcomes)))
		}
	}

	return result, nil
}
