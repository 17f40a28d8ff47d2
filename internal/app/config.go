package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"

	"campaign-mailer/internal/config"
	"campaign-mailer/internal/fake"
	"campaign-mailer/internal/locker"
	"campaign-mailer/internal/mailchimp"
	"campaign-mailer/internal/mailgun"
	"campaign-mailer/internal/render"
	"campaign-mailer/internal/ses"
	"campaign-mailer/internal/smtp"
)

type configProvider interface {
	GetTransport() string
	GetSmtpConfig() smtp.Config
	GetMailgunConfig() mailgun.Config
	GetSesConfig() ses.Config
	GetFakeConfig() fake.Config
	GetAwsConfig(ctx context.Context) (aws.Config, error)
	GetMailchimpConfig() mailchimp.Config
	GetTracker() render.Tracker
	GetMailchimpTestEmails() []string
	GetReportDelay() time.Duration
	GetRenderConfig() render.Config
	GetTemplatesDir() string
	GetDefaultTemplate() string
	GetCampaign() config.CampaignConfig
	GetVariables() map[string]string
	GetBatchSize() int
	GetDelay() time.Duration
	GetConfirmWindow() time.Duration
	GetLockConfig() locker.Config
	GetRedisOptions() *redis.Options
	GetJournalTable() string
	GetMetricsPort() int
}

func newTransport(ctx context.Context, cp configProvider) (transport, error) {
	switch cp.GetTransport() {
	case config.TransportSmtp:
		cfg := cp.GetSmtpConfig()
		if cfg.Host == "" || cfg.Port == 0 {
			return nil, fmt.Errorf("%w: smtp host and port are required", ErrConfiguration)
		}
		return smtp.New(cfg), nil
	case config.TransportMailgun:
		cfg := cp.GetMailgunConfig()
		if cfg.Domain == "" || cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: mailgun domain and api key are required", ErrConfiguration)
		}
		return mailgun.New(cfg), nil
	case config.TransportSes:
		awsCfg, err := cp.GetAwsConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load aws config: %w", ErrConfiguration, err)
		}
		if awsCfg.Region == "" {
			return nil, fmt.Errorf("%w: aws region is required", ErrConfiguration)
		}
		return ses.NewFromConfig(awsCfg, cp.GetSesConfig()), nil
	case config.TransportFake:
		return fake.New(cp.GetFakeConfig()), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrConfiguration, cp.GetTransport())
	}
}
