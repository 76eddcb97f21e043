package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "COINVAULT_"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Database DatabaseConfig `env:",prefix=DB_"`
	Log      LogConfig      `env:",prefix=LOG_"`
	Ledger   LedgerConfig   `env:",prefix=LEDGER_"`
	Auth     AuthConfig     `env:",prefix=AUTH_"`
	Email    EmailConfig    `env:",prefix=EMAIL_"`
	Push     PushConfig     `env:",prefix=PUSH_"`
	Kafka    KafkaConfig    `env:",prefix=KAFKA_"`
	S3       S3Config       `env:",prefix=S3_"`
	Snapshot SnapshotConfig `env:",prefix=SNAPSHOT_"`
	Stripe   StripeConfig   `env:",prefix=STRIPE_"`
	Rate     RateConfig     `env:",prefix=RATE_"`
}

type ServerConfig struct {
	Port            string        `env:"PORT,default=8080"`
	BaseURL         string        `env:"BASE_URL"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT,default=10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

type DatabaseConfig struct {
	Path string `env:"PATH,default=coinvault.db"`
}

type LogConfig struct {
	Level  string `env:"LEVEL,default=info"`
	Format string `env:"FORMAT,default=text"`
}

// LedgerConfig holds coin ledger policy switches.
type LedgerConfig struct {
	// EnforceGrantExpiry excludes expired campaign grants from eligibility
	// and settlement. Off by default: expired grants remain spendable.
	EnforceGrantExpiry bool `env:"ENFORCE_GRANT_EXPIRY,default=false"`
	CodeExpiryDays     int  `env:"CODE_EXPIRY_DAYS,default=30"`
}

type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET"`
	SessionTTL time.Duration `env:"SESSION_TTL,default=2160h"`
	TokenTTL   time.Duration `env:"TOKEN_TTL,default=24h"`
}

type EmailConfig struct {
	PostmarkToken string `env:"POSTMARK_TOKEN"`
	From          string `env:"FROM,default=rewards@coinvault.local"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT,default=587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
}

type PushConfig struct {
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	Subscriber      string `env:"SUBSCRIBER,default=mailto:rewards@coinvault.local"`
}

type KafkaConfig struct {
	Brokers  []string `env:"BROKERS"`
	Topic    string   `env:"TOPIC,default=coinvault.ledger"`
	ClientID string   `env:"CLIENT_ID,default=coinvault"`
}

type S3Config struct {
	Endpoint  string `env:"ENDPOINT"`
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION,default=us-east-1"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
}

type SnapshotConfig struct {
	Passphrase    string        `env:"PASSPHRASE"`
	Interval      time.Duration `env:"INTERVAL,default=24h"`
	RetentionDays int           `env:"RETENTION_DAYS,default=30"`
}

type StripeConfig struct {
	SecretKey         string `env:"SECRET_KEY"`
	WebhookSecret     string `env:"WEBHOOK_SECRET"`
	PricePerCoinCents int64  `env:"PRICE_PER_COIN_CENTS,default=1"`
	Currency          string `env:"CURRENCY,default=usd"`
	SuccessURL        string `env:"SUCCESS_URL"`
	CancelURL         string `env:"CANCEL_URL"`
}

type RateConfig struct {
	LoginPerMinute  int `env:"LOGIN_PER_MINUTE,default=10"`
	RedeemPerMinute int `env:"REDEEM_PER_MINUTE,default=20"`
}

// Load reads configuration from COINVAULT_* environment variables.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration through an arbitrary lookuper.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(Prefix, l),
	}); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:" + cfg.Server.Port
	}
	if cfg.Ledger.CodeExpiryDays <= 0 {
		return nil, fmt.Errorf("ledger code expiry days must be positive, got %d", cfg.Ledger.CodeExpiryDays)
	}
	return &cfg, nil
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return ":" + c.Port
}

// Enabled reports whether snapshot uploads can run.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

func (c PushConfig) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c StripeConfig) Enabled() bool {
	return c.SecretKey != "" && c.WebhookSecret != ""
}
