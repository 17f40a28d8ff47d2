package config

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/redis/go-redis/v9"

	"campaign-mailer/internal/fake"
	"campaign-mailer/internal/locker"
	"campaign-mailer/internal/mailchimp"
	"campaign-mailer/internal/mailgun"
	"campaign-mailer/internal/render"
	"campaign-mailer/internal/ses"
	"campaign-mailer/internal/smtp"
)

const (
	TransportSmtp    = "smtp"
	TransportMailgun = "mailgun"
	TransportSes     = "ses"
	TransportFake    = "fake"
)

const (
	defaultBatchSize     = 10
	defaultDelayMs       = 1000
	defaultConfirmWindow = 5 * time.Second
	defaultReportDelay   = 30 * time.Second
)

// Link variables every template may reference; an empty or missing value falls back to these.
var defaultLinkVariables = map[string]string{
	"REGISTRATION_URL": "https://example.com/register",
	"UNSUBSCRIBE_URL":  "https://example.com/unsubscribe",
	"PREFERENCES_URL":  "https://example.com/preferences",
}

type SenderConfig struct {
	From    string `yaml:"from" validate:"required"`
	ReplyTo string `yaml:"reply_to"`
}

type SmtpConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Secure           bool          `yaml:"secure"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	AllowInsecureTls bool          `yaml:"allow_insecure_tls"`
	Track            bool          `yaml:"track"`
	Timeout          time.Duration `yaml:"timeout"`
}

type MailgunConfig struct {
	BaseURL string `yaml:"base_url"`
	Domain  string `yaml:"domain"`
	APIKey  string `yaml:"api_key"`
	Track   bool   `yaml:"track"`
}

type AwsConfig struct {
	BaseEndpoint     string `yaml:"base_endpoint"`
	Region           string `yaml:"region"`
	Key              string `yaml:"key"`
	Secret           string `yaml:"secret"`
	ConfigurationSet string `yaml:"configuration_set"`
}

type FakeConfig struct {
	Failing []string      `yaml:"failing"`
	Latency time.Duration `yaml:"latency"`
}

type MailchimpConfig struct {
	APIKey          string        `yaml:"api_key"`
	ServerPrefix    string        `yaml:"server_prefix"`
	ListID          string        `yaml:"list_id"`
	UserID          string        `yaml:"user_id"`
	FromName        string        `yaml:"from_name"`
	PreviewText     string        `yaml:"preview_text"`
	Title           string        `yaml:"title"`
	GoogleAnalytics string        `yaml:"google_analytics"`
	TestEmails      string        `yaml:"test_emails"`
	ReportDelay     time.Duration `yaml:"report_delay"`
}

type TemplatesConfig struct {
	Dir     string `yaml:"dir" validate:"required"`
	Default string `yaml:"default" validate:"required"`
	Layout  string `yaml:"layout"`
}

type CampaignConfig struct {
	Name      string `yaml:"name" validate:"required"`
	Tag       string `yaml:"tag" validate:"required"`
	Subject   string `yaml:"subject" validate:"required"`
	TestEmail string `yaml:"test_email"`
}

type DispatchConfig struct {
	BatchSize     int            `yaml:"batch_size" validate:"gte=0"`
	DelayMs       *int           `yaml:"delay_ms" validate:"omitempty,gte=0"`
	ConfirmWindow *time.Duration `yaml:"confirm_window"`
}

type LockConfig struct {
	Driver string        `yaml:"driver" validate:"omitempty,oneof=fs redis none"`
	Dir    string        `yaml:"dir"`
	TTL    time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JournalConfig struct {
	Table string `yaml:"table"`
}

type MetricsConfig struct {
	Port int `yaml:"port" validate:"gte=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

type Config struct {
	Transport string            `yaml:"transport" validate:"required,oneof=smtp mailgun ses fake"`
	Sender    SenderConfig      `yaml:"sender" validate:"required"`
	Smtp      SmtpConfig        `yaml:"smtp"`
	Mailgun   MailgunConfig     `yaml:"mailgun"`
	Aws       AwsConfig         `yaml:"aws"`
	Fake      FakeConfig        `yaml:"fake"`
	Mailchimp MailchimpConfig   `yaml:"mailchimp"`
	Templates TemplatesConfig   `yaml:"templates" validate:"required"`
	Campaign  CampaignConfig    `yaml:"campaign" validate:"required"`
	Variables map[string]string `yaml:"variables"`
	Dispatch  DispatchConfig    `yaml:"dispatch"`
	Lock      LockConfig        `yaml:"lock"`
	Redis     RedisConfig       `yaml:"redis"`
	Journal   JournalConfig     `yaml:"journal"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Log       LogConfig         `yaml:"log"`
}

func NewFromYaml(filePath string) (*Config, error) {
	cfg := &Config{}
	if err := NewLoader(filePath).Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func NewFromYamlContent(yamlContent []byte) (*Config, error) {
	cfg := &Config{}
	if err := LoadContent(yamlContent, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) GetTransport() string {
	return c.Transport
}

func (c *Config) GetSmtpConfig() smtp.Config {
	return smtp.Config{
		Host:             c.Smtp.Host,
		Port:             c.Smtp.Port,
		Secure:           c.Smtp.Secure,
		User:             c.Smtp.User,
		Password:         c.Smtp.Password,
		From:             c.Sender.From,
		ReplyTo:          c.Sender.ReplyTo,
		AllowInsecureTls: c.Smtp.AllowInsecureTls,
		Timeout:          c.Smtp.Timeout,
		Track:            c.Smtp.Track,
	}
}

func (c *Config) GetMailgunConfig() mailgun.Config {
	return mailgun.Config{
		BaseURL: c.Mailgun.BaseURL,
		Domain:  c.Mailgun.Domain,
		APIKey:  c.Mailgun.APIKey,
		From:    c.Sender.From,
		ReplyTo: c.Sender.ReplyTo,
		Track:   c.Mailgun.Track,
	}
}

func (c *Config) GetSesConfig() ses.Config {
	return ses.Config{
		From:             c.Sender.From,
		ReplyTo:          c.Sender.ReplyTo,
		ConfigurationSet: c.Aws.ConfigurationSet,
	}
}

func (c *Config) GetFakeConfig() fake.Config {
	return fake.Config{Failing: c.Fake.Failing, Latency: c.Fake.Latency}
}

// GetAwsConfig resolves the SDK configuration from the environment chain,
// overridden by static credentials and endpoint when configured.
func (c *Config) GetAwsConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Aws.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Aws.Region))
	}
	if c.Aws.Key != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.Aws.Key, c.Aws.Secret, ""),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if c.Aws.BaseEndpoint != "" {
		awsConfig.BaseEndpoint = aws.String(c.Aws.BaseEndpoint)
	}

	return awsConfig, nil
}

func (c *Config) GetMailchimpConfig() mailchimp.Config {
	return mailchimp.Config{
		APIKey:          c.Mailchimp.APIKey,
		ServerPrefix:    c.Mailchimp.ServerPrefix,
		ListID:          c.Mailchimp.ListID,
		FromName:        c.Mailchimp.FromName,
		ReplyTo:         c.Sender.ReplyTo,
		PreviewText:     c.Mailchimp.PreviewText,
		Title:           c.Mailchimp.Title,
		GoogleAnalytics: c.Mailchimp.GoogleAnalytics,
	}
}

func (c *Config) GetTracker() render.Tracker {
	return render.Tracker{ServerPrefix: c.Mailchimp.ServerPrefix, UserID: c.Mailchimp.UserID}
}

// GetMailchimpTestEmails splits the comma separated test address list.
func (c *Config) GetMailchimpTestEmails() []string {
	var emails []string
	for _, email := range strings.Split(c.Mailchimp.TestEmails, ",") {
		if email = strings.TrimSpace(email); email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}

func (c *Config) GetReportDelay() time.Duration {
	if c.Mailchimp.ReportDelay <= 0 {
		return defaultReportDelay
	}
	return c.Mailchimp.ReportDelay
}

func (c *Config) GetRenderConfig() render.Config {
	return render.Config{Layout: c.Templates.Layout}
}

func (c *Config) GetTemplatesDir() string {
	return c.Templates.Dir
}

func (c *Config) GetDefaultTemplate() string {
	return c.Templates.Default
}

func (c *Config) GetCampaign() CampaignConfig {
	return c.Campaign
}

// GetVariables returns the template variables; the map is a copy.
func (c *Config) GetVariables() map[string]string {
	vars := make(map[string]string, len(c.Variables)+len(defaultLinkVariables))
	for key, value := range c.Variables {
		vars[key] = value
	}
	for key, fallback := range defaultLinkVariables {
		if vars[key] == "" {
			vars[key] = fallback
		}
	}
	return vars
}

func (c *Config) GetBatchSize() int {
	if c.Dispatch.BatchSize <= 0 {
		return defaultBatchSize
	}
	return c.Dispatch.BatchSize
}

func (c *Config) GetDelay() time.Duration {
	if c.Dispatch.DelayMs == nil {
		return defaultDelayMs * time.Millisecond
	}
	return time.Duration(*c.Dispatch.DelayMs) * time.Millisecond
}

func (c *Config) GetConfirmWindow() time.Duration {
	if c.Dispatch.ConfirmWindow == nil {
		return defaultConfirmWindow
	}
	return *c.Dispatch.ConfirmWindow
}

func (c *Config) GetLockConfig() locker.Config {
	return locker.Config{Driver: c.Lock.Driver, Dir: c.Lock.Dir, TTL: c.Lock.TTL}
}

// GetRedisOptions returns nil when no redis address is configured.
func (c *Config) GetRedisOptions() *redis.Options {
	if c.Redis.Addr == "" {
		return nil
	}
	return &redis.Options{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB}
}

func (c *Config) GetJournalTable() string {
	return c.Journal.Table
}

func (c *Config) GetMetricsPort() int {
	return c.Metrics.Port
}

func (c *Config) GetLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
