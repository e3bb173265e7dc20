package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	defaultJWTSecret  = "change-me-jwt-secret"
	defaultWebpayKey  = "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C"
	defaultWebpayCode = "597055555532"
	defaultWebpayBase = "https://webpay3gint.transbank.cl"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Reservation ReservationConfig
	Webpay      WebpayConfig
	Notify      NotifyConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Internal    InternalConfig
	Admin       AdminConfig
	Log         LogConfig
}

type AppConfig struct {
	Env  string `envconfig:"APP_ENV" default:"dev"`
	Port string `envconfig:"PORT" default:"8080"`
	// PublicURL is where Webpay sends the buyer back (…/api/v1/payments/webpay/return).
	PublicURL   string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`
	SuccessPath string `envconfig:"CHECKOUT_SUCCESS_PATH" default:"/reserva/exito"`
	FailurePath string `envconfig:"CHECKOUT_FAILURE_PATH" default:"/reserva/error"`
}

type DBConfig struct {
	URL             string        `envconfig:"DATABASE_URL" default:"loteo.db"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
}

type ReservationConfig struct {
	LockMinutes   int           `envconfig:"RESERVATION_LOCK_MINUTES" default:"15"`
	DefaultFee    int64         `envconfig:"RESERVATION_DEFAULT_FEE" default:"500000"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"0"`
}

type WebpayConfig struct {
	CommerceCode string        `envconfig:"WEBPAY_COMMERCE_CODE" default:"597055555532"`
	APIKey       string        `envconfig:"WEBPAY_API_KEY" default:"579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C"`
	BaseURL      string        `envconfig:"WEBPAY_BASE_URL" default:"https://webpay3gint.transbank.cl"`
	Timeout      time.Duration `envconfig:"WEBPAY_TIMEOUT" default:"15s"`
}

type NotifyConfig struct {
	WebhookURL string        `envconfig:"NOTIFY_WEBHOOK_URL"`
	AMQPURL    string        `envconfig:"NOTIFY_AMQP_URL"`
	Queue      string        `envconfig:"NOTIFY_AMQP_QUEUE" default:"reservations.paid"`
	Timeout    time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"10"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"6s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL" default:"10m"`
	KeyStrategy    string        `envconfig:"RATE_LIMIT_KEY_STRATEGY" default:"ip_route"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
}

type JWTConfig struct {
	Secret    string        `envconfig:"JWT_SECRET" default:"change-me-jwt-secret"`
	AccessTTL time.Duration `envconfig:"JWT_ACCESS_TTL" default:"12h"`
}

type CORSConfig struct {
	AllowOrigins     []string      `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000"`
	AllowMethods     []string      `envconfig:"CORS_ALLOW_METHODS" default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowHeaders     []string      `envconfig:"CORS_ALLOW_HEADERS" default:"Origin,Content-Type,Accept,Authorization,X-Session-ID"`
	AllowCredentials bool          `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"CORS_MAX_AGE" default:"12h"`
}

// InternalConfig guards /internal endpoints. An empty token disables them.
type InternalConfig struct {
	Token      string   `envconfig:"INTERNAL_TOKEN"`
	AllowedIPs []string `envconfig:"INTERNAL_ALLOWED_IPS"`
}

// AdminConfig is the bootstrap admin created by cmd/seed.
type AdminConfig struct {
	Email    string `envconfig:"ADMIN_EMAIL"`
	Password string `envconfig:"ADMIN_PASSWORD"`
	Name     string `envconfig:"ADMIN_NAME" default:"Administrador"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	cfg.App.Env = strings.ToLower(strings.TrimSpace(cfg.App.Env))
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LockDuration is how long a reservation holds its lot.
func (c ReservationConfig) LockDuration() time.Duration {
	return time.Duration(c.LockMinutes) * time.Minute
}

// ReturnURL is the absolute URL Webpay redirects the buyer to after paying.
func (c AppConfig) ReturnURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/api/v1/payments/webpay/return"
}

func (c AppConfig) IsProd() bool {
	return isProdLike(c.Env)
}

func validateConfig(cfg *Config) error {
	if cfg.Reservation.LockMinutes <= 0 {
		return fmt.Errorf("RESERVATION_LOCK_MINUTES must be > 0")
	}
	if cfg.Reservation.DefaultFee <= 0 {
		return fmt.Errorf("RESERVATION_DEFAULT_FEE must be > 0")
	}
	if cfg.Reservation.SweepInterval < 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be >= 0")
	}
	if cfg.JWT.AccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.Webpay.Timeout <= 0 {
		return fmt.Errorf("WEBPAY_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Webpay.CommerceCode) == "" {
		return fmt.Errorf("WEBPAY_COMMERCE_CODE must not be empty")
	}
	if _, err := url.ParseRequestURI(cfg.Webpay.BaseURL); err != nil {
		return fmt.Errorf("invalid WEBPAY_BASE_URL value %q: %w", cfg.Webpay.BaseURL, err)
	}
	if _, err := url.ParseRequestURI(cfg.App.PublicURL); err != nil {
		return fmt.Errorf("invalid PUBLIC_BASE_URL value %q: %w", cfg.App.PublicURL, err)
	}
	if cfg.RateLimit.Capacity < 1 {
		cfg.RateLimit.Capacity = 1
	}
	if cfg.RateLimit.RefillTokens < 1 {
		cfg.RateLimit.RefillTokens = 1
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	if minTTL := 5 * cfg.RateLimit.RefillInterval; cfg.RateLimit.TTL < minTTL {
		cfg.RateLimit.TTL = minTTL
	}

	if isProdLike(cfg.App.Env) {
		if isEmptyOrDefault(cfg.JWT.Secret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.Webpay.APIKey, defaultWebpayKey) || cfg.Webpay.CommerceCode == defaultWebpayCode {
			return fmt.Errorf("in prod/release WEBPAY_COMMERCE_CODE and WEBPAY_API_KEY must be production credentials")
		}
		if cfg.Internal.Token != "" && len(cfg.Internal.Token) < 32 {
			return fmt.Errorf("in prod/release INTERNAL_TOKEN must be at least 32 characters")
		}
		if strings.TrimRight(cfg.Webpay.BaseURL, "/") == defaultWebpayBase {
			return fmt.Errorf("in prod/release WEBPAY_BASE_URL must not point to the integration environment")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}
