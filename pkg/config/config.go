package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "MAQUIS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MAQUIS_DB_DSN"
	EnvDBHost = "MAQUIS_DB_HOST"
	EnvDBUser = "MAQUIS_DB_USER"
	EnvDBName = "MAQUIS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Payme  PaymeConfig
	Cards  CardsConfig
	PubSub PubSubConfig
	GCP    GCPConfig
	Outbox OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MAQUIS_APP_ENV" required:"true"`
	Port         string `envconfig:"MAQUIS_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"MAQUIS_APP_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"MAQUIS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MAQUIS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MAQUIS_DB_DSN"`
	Driver string `envconfig:"MAQUIS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MAQUIS_DB_HOST"`
	LegacyPort     int    `envconfig:"MAQUIS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MAQUIS_DB_USER"`
	LegacyPassword string `envconfig:"MAQUIS_DB_PASSWORD"`
	LegacyName     string `envconfig:"MAQUIS_DB_NAME"`
	LegacySSLMode  string `envconfig:"MAQUIS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MAQUIS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAQUIS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MAQUIS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MAQUIS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"MAQUIS_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MAQUIS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MAQUIS_REDIS_ADDR"`
	Password     string        `envconfig:"MAQUIS_REDIS_PASSWORD"`
	DB           int           `envconfig:"MAQUIS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MAQUIS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MAQUIS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MAQUIS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MAQUIS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MAQUIS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MAQUIS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MAQUIS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MAQUIS_JWT_EXPIRATION_MINUTES" default:"720"`
}

type PaymeConfig struct {
	Env            string        `envconfig:"MAQUIS_PAYME_ENV" default:"sandbox"`
	MerchantID     string        `envconfig:"MAQUIS_PAYME_MERCHANT_ID"`
	APIKey         string        `envconfig:"MAQUIS_PAYME_API_KEY"`
	RequestTimeout time.Duration `envconfig:"MAQUIS_PAYME_REQUEST_TIMEOUT" default:"15s"`
	WebhookTTL     time.Duration `envconfig:"MAQUIS_PAYME_WEBHOOK_TTL" default:"168h"`
}

// Environment returns the normalized Payme environment (sandbox/production).
func (p PaymeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type CardsConfig struct {
	// Base64-encoded 32-byte key for the balance cipher.
	CipherKey     string        `envconfig:"MAQUIS_CARD_CIPHER_KEY" required:"true"`
	DefaultExpiry time.Duration `envconfig:"MAQUIS_CARD_DEFAULT_EXPIRY" default:"8760h"`
}

// DecodedCipherKey returns the raw cipher key bytes.
func (c CardsConfig) DecodedCipherKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.CipherKey))
	if err != nil {
		return nil, fmt.Errorf("decoding card cipher key: %w", err)
	}
	return key, nil
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"MAQUIS_PUBSUB_DOMAIN_TOPIC" default:"maquis-domain-events"`
	DomainSubscription string `envconfig:"MAQUIS_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MAQUIS_GCP_PROJECT_ID"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MAQUIS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MAQUIS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MAQUIS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
