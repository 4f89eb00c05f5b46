package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/drivermed-api/pkg/messaging/redis"
	"github.com/jwalitptl/drivermed-api/pkg/worker"
)

// EnvPrefix namespaces every non-secret override, e.g. BOOKING_SERVER_PORT.
const EnvPrefix = "BOOKING"

type Config struct {
	Environment string          `mapstructure:"environment"`
	Log         LogConfig       `mapstructure:"log"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Outbox      OutboxConfig    `mapstructure:"outbox"`
	Slots       SlotConfig      `mapstructure:"slots"`
	Discounts   []DiscountCode  `mapstructure:"discounts"`
	Payment     PaymentConfig   `mapstructure:"payment"`
	Email       EmailConfig     `mapstructure:"email"`
	JWT         JWTConfig       `mapstructure:"jwt"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	CORS        CORSConfig      `mapstructure:"cors"`
	Geo         GeoConfig       `mapstructure:"geo"`
	Catalog     CatalogConfig   `mapstructure:"catalog"`

	// Secrets never live in the YAML file.
	Secrets Secrets `mapstructure:"-"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	// URL wins over the individual fields when set.
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	URL           string        `mapstructure:"url"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	// MaxDeliveries is how many claim cycles an event gets before it is marked failed.
	MaxDeliveries int           `mapstructure:"max_deliveries"`
	Retention     time.Duration `mapstructure:"retention"`
	PurgeCron     string        `mapstructure:"purge_cron"`
}

type SlotConfig struct {
	Open            string `mapstructure:"open"`
	Close           string `mapstructure:"close"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
}

type DiscountCode struct {
	Code        string `mapstructure:"code"`
	AmountPence int64  `mapstructure:"amount_pence"`
	ExpiresAt   string `mapstructure:"expires_at"`
	Hidden      bool   `mapstructure:"hidden"`
}

type PaymentConfig struct {
	Currency          string        `mapstructure:"currency"`
	Timeout           time.Duration `mapstructure:"timeout"`
	SuccessURL        string        `mapstructure:"success_url"`
	CancelURL         string        `mapstructure:"cancel_url"`
	ProcessedEventTTL time.Duration `mapstructure:"processed_event_ttl"`
}

type EmailConfig struct {
	// Provider is one of smtp, sendgrid, ses or log.
	Provider     string        `mapstructure:"provider"`
	From         string        `mapstructure:"from"`
	FromName     string        `mapstructure:"from_name"`
	AdminAddress string        `mapstructure:"admin_address"`
	SMTPHost     string        `mapstructure:"smtp_host"`
	SMTPPort     int           `mapstructure:"smtp_port"`
	SMTPUser     string        `mapstructure:"smtp_user"`
	SESRegion    string        `mapstructure:"ses_region"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type JWTConfig struct {
	Issuer string        `mapstructure:"issuer"`
	Expiry time.Duration `mapstructure:"expiry"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GeoConfig struct {
	PostcodeAPIURL string        `mapstructure:"postcode_api_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Secrets are read from the process environment only.
type Secrets struct {
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	JWTSecret           string `envconfig:"JWT_SECRET"`
	SendGridAPIKey      string `envconfig:"SENDGRID_API_KEY"`
	SMTPPassword        string `envconfig:"SMTP_PASSWORD"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 20*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "drivermed")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.channel_prefix", "drivermed")

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Second)
	v.SetDefault("outbox.max_deliveries", 10)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.purge_cron", "15 3 * * *")

	v.SetDefault("slots.open", "09:00")
	v.SetDefault("slots.close", "17:00")
	v.SetDefault("slots.interval_minutes", 15)

	v.SetDefault("payment.currency", "gbp")
	v.SetDefault("payment.timeout", 10*time.Second)
	v.SetDefault("payment.success_url", "http://localhost:3000/booking/success")
	v.SetDefault("payment.cancel_url", "http://localhost:3000/booking/cancelled")
	v.SetDefault("payment.processed_event_ttl", 72*time.Hour)

	v.SetDefault("email.provider", "log")
	v.SetDefault("email.from", "bookings@example.com")
	v.SetDefault("email.from_name", "Driver Medicals")
	v.SetDefault("email.admin_address", "admin@example.com")
	v.SetDefault("email.smtp_host", "localhost")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.smtp_user", "")
	v.SetDefault("email.ses_region", "eu-west-2")
	v.SetDefault("email.timeout", 15*time.Second)

	v.SetDefault("jwt.issuer", "drivermed-api")
	v.SetDefault("jwt.expiry", 8*time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("geo.postcode_api_url", "https://api.postcodes.io")
	v.SetDefault("geo.timeout", 5*time.Second)
	v.SetDefault("geo.cache_ttl", 24*time.Hour)

	v.SetDefault("catalog.cache_ttl", 5*time.Minute)
}

// LoadConfig reads config.yaml (from path, or ., ./config, /app/config when path is empty),
// applies BOOKING_* environment overrides and then the secret variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Slots.IntervalMinutes <= 0 {
		return fmt.Errorf("slots.interval_minutes must be positive")
	}
	if c.Slots.Open >= c.Slots.Close {
		return fmt.Errorf("slots.open %q must be before slots.close %q", c.Slots.Open, c.Slots.Close)
	}
	switch c.Email.Provider {
	case "smtp", "sendgrid", "ses", "log":
	default:
		return fmt.Errorf("unknown email.provider %q", c.Email.Provider)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		MaxDeliveries: c.MaxDeliveries,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:           c.URL,
		MaxRetries:    c.MaxRetries,
		RetryBackoff:  c.RetryBackoff,
		PoolSize:      c.PoolSize,
		MinIdleConns:  c.MinIdleConns,
		ChannelPrefix: c.ChannelPrefix,
	}
}
