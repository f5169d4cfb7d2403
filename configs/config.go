package configs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ROOTFUEL_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
		MaxWebhookBytes int64         `koanf:"max_webhook_bytes"`
		// WebhookBudget caps one webhook delivery; it must fit inside WriteTimeout.
		WebhookBudget time.Duration `koanf:"webhook_budget"`
	} `koanf:"http"`

	Ledger LedgerConfig `koanf:"ledger"`
	Stripe StripeConfig `koanf:"stripe"`
	Email  EmailConfig  `koanf:"email"`

	Redis struct {
		Addr      string        `koanf:"addr"`
		Password  string        `koanf:"password"`
		DB        int           `koanf:"db"`
		StatusTTL time.Duration `koanf:"status_ttl"`
		Timeout   time.Duration `koanf:"timeout"`
	} `koanf:"redis"`

	Idempotency struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`

	Rabbit struct {
		URL      string `koanf:"url"`
		Exchange string `koanf:"exchange"`
		Prefetch int    `koanf:"prefetch"`
	} `koanf:"rabbitmq"`

	Security SecurityConfig `koanf:"security"`
}

// LedgerConfig points at the Google Sheet that holds the order table.
type LedgerConfig struct {
	SpreadsheetID   string        `koanf:"spreadsheet_id"`
	Sheet           string        `koanf:"sheet"`
	CredentialsFile string        `koanf:"credentials_file"`
	CredentialsJSON string        `koanf:"credentials_json"`
	Timeout         time.Duration `koanf:"timeout"`
}

type StripeConfig struct {
	SecretKey     string        `koanf:"secret_key"`
	WebhookSecret string        `koanf:"webhook_secret"`
	Currency      string        `koanf:"currency"`
	SuccessURL    string        `koanf:"success_url"`
	CancelURL     string        `koanf:"cancel_url"`
	Timeout       time.Duration `koanf:"timeout"`
}

type EmailConfig struct {
	APIKey             string        `koanf:"api_key"`
	From               string        `koanf:"from"`
	MerchantFrom       string        `koanf:"merchant_from"`
	MerchantRecipients []string      `koanf:"merchant_recipients"`
	Timeout            time.Duration `koanf:"timeout"`
}

type SecurityConfig struct {
	JWTSecret string         `koanf:"jwt_secret"`
	Issuer    string         `koanf:"issuer"`
	Audience  string         `koanf:"audience"`
	TTL       time.Duration  `koanf:"ttl"`
	Clients   []ClientConfig `koanf:"clients"`
}

type ClientConfig struct {
	ID       string   `koanf:"id"`
	Secret   string   `koanf:"secret"`
	Perms    []string `koanf:"perms"`
	Disabled bool     `koanf:"disabled"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	// 1) base
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// 2) env override (dev/staging/prod). Optional: allow missing for local runs.
	_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())

	// 3) environment variables, nested with __
	// e.g. ROOTFUEL_STRIPE__SECRET_KEY, ROOTFUEL_EMAIL__MERCHANT_RECIPIENTS="a@x,b@x"
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, envPrefix), "__", "."))
		if key == "email.merchant_recipients" {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.Ledger.Sheet == "" {
		c.Ledger.Sheet = "Orders"
	}
	if c.Stripe.Currency == "" {
		c.Stripe.Currency = "gbp"
	}
	if c.Email.MerchantFrom == "" {
		c.Email.MerchantFrom = c.Email.From
	}
	if c.HTTP.MaxWebhookBytes <= 0 {
		c.HTTP.MaxWebhookBytes = 64 << 10
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTP.WebhookBudget <= 0 {
		c.HTTP.WebhookBudget = 20 * time.Second
	}
	if c.Redis.Timeout <= 0 {
		c.Redis.Timeout = 2 * time.Second
	}
	if c.Security.TTL <= 0 {
		c.Security.TTL = 15 * time.Minute
	}
}

func (c Config) Validate() error {
	var errs []error
	require := func(v, key string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s required", key))
		}
	}
	require(c.App.HTTPAddr, "app.http_addr")
	require(c.Ledger.SpreadsheetID, "ledger.spreadsheet_id")
	if c.Ledger.CredentialsFile == "" && c.Ledger.CredentialsJSON == "" {
		errs = append(errs, errors.New("ledger.credentials_file or ledger.credentials_json required"))
	}
	require(c.Stripe.SecretKey, "stripe.secret_key")
	require(c.Stripe.WebhookSecret, "stripe.webhook_secret")
	require(c.Stripe.SuccessURL, "stripe.success_url")
	require(c.Stripe.CancelURL, "stripe.cancel_url")
	require(c.Email.APIKey, "email.api_key")
	require(c.Email.From, "email.from")
	if len(c.Email.MerchantRecipients) == 0 {
		errs = append(errs, errors.New("email.merchant_recipients requires at least one address"))
	}
	if c.HTTP.WriteTimeout > 0 && c.HTTP.WebhookBudget >= c.HTTP.WriteTimeout {
		errs = append(errs, fmt.Errorf("http.webhook_budget (%s) must be shorter than http.write_timeout (%s)",
			c.HTTP.WebhookBudget, c.HTTP.WriteTimeout))
	}
	if len(c.Security.Clients) > 0 {
		require(c.Security.JWTSecret, "security.jwt_secret")
	}
	return errors.Join(errs...)
}
