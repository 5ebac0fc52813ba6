package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultJWTSecret        = "change-me-jwt-secret"
	defaultJWTRefreshSecret = "change-me-jwt-refresh-secret"
)

// Config is loaded once at startup and handed to the components that need it.
type Config struct {
	AppName     string `envconfig:"APP_NAME" default:"PDF Desk API"`
	AppVersion  string `envconfig:"APP_VERSION" default:"1.0.0"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Port        string `envconfig:"PORT" default:"8080"`
	PublicURL   string `envconfig:"APP_URL" default:"http://localhost:8080"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Hard ceiling on a single multipart request, independent of plan limits.
	MaxUploadSizeMB int64 `envconfig:"MAX_UPLOAD_SIZE_MB" default:"200"`

	Mongo     MongoConfig     `envconfig:"MONGO"`
	JWT       JWTConfig       `envconfig:"JWT"`
	CORS      CORSConfig      `envconfig:"CORS"`
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
	Storage   StorageConfig   `envconfig:"STORAGE"`
	Mail      MailConfig      `envconfig:"MAIL"`
	Stripe    StripeConfig    `envconfig:"STRIPE"`
	Sidecar   SidecarConfig   `envconfig:"SIDECAR"`
	Jobs      JobsConfig      `envconfig:"JOBS"`
}

type MongoConfig struct {
	URI              string        `envconfig:"URI" default:"mongodb://localhost:27017"`
	Database         string        `envconfig:"DATABASE" default:"pdfdesk"`
	MaxPoolSize      uint64        `envconfig:"MAX_POOL_SIZE" default:"100"`
	MinPoolSize      uint64        `envconfig:"MIN_POOL_SIZE" default:"5"`
	MaxConnIdleTime  time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"5m"`
	ConnectTimeout   time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`
	ServerTimeout    time.Duration `envconfig:"SERVER_TIMEOUT" default:"10s"`
	SocketTimeout    time.Duration `envconfig:"SOCKET_TIMEOUT" default:"30s"`
	OperationTimeout time.Duration `envconfig:"OPERATION_TIMEOUT" default:"10s"`
}

type JWTConfig struct {
	Secret        string        `envconfig:"SECRET" default:"change-me-jwt-secret"`
	RefreshSecret string        `envconfig:"REFRESH_SECRET" default:"change-me-jwt-refresh-secret"`
	AccessTTL     time.Duration `envconfig:"ACCESS_TTL" default:"24h"`
	RefreshTTL    time.Duration `envconfig:"REFRESH_TTL" default:"168h"`
	Issuer        string        `envconfig:"ISSUER" default:"pdfdesk"`
}

// CORSConfig is the allow-list used by the CORS middleware.
type CORSConfig struct {
	AllowedOrigins   []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	AllowCredentials bool          `envconfig:"ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"MAX_AGE" default:"12h"`
}

type RateLimitConfig struct {
	Enabled           bool          `envconfig:"ENABLED" default:"true"`
	RequestsPerSecond float64       `envconfig:"RPS" default:"10"`
	Burst             int           `envconfig:"BURST" default:"30"`
	IdleTTL           time.Duration `envconfig:"IDLE_TTL" default:"10m"`
}

type StorageConfig struct {
	Driver      string        `envconfig:"DRIVER" default:"local"`
	LocalPath   string        `envconfig:"LOCAL_PATH" default:"./uploads"`
	S3Bucket    string        `envconfig:"S3_BUCKET"`
	S3Region    string        `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint  string        `envconfig:"S3_ENDPOINT"`
	S3AccessKey string        `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string        `envconfig:"S3_SECRET_KEY"`
	R2AccountID string        `envconfig:"R2_ACCOUNT_ID"`
	PresignTTL  time.Duration `envconfig:"PRESIGN_TTL" default:"15m"`
}

// MailConfig selects and configures the invoice mail transport.
type MailConfig struct {
	Provider     string `envconfig:"PROVIDER" default:"none"`
	From         string `envconfig:"FROM" default:"billing@pdfdesk.local"`
	FromName     string `envconfig:"FROM_NAME" default:"PDF Desk"`
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
}

type StripeConfig struct {
	SecretKey     string `envconfig:"SECRET_KEY"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
	SuccessURL    string `envconfig:"SUCCESS_URL" default:"http://localhost:3000/payment/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL     string `envconfig:"CANCEL_URL" default:"http://localhost:3000/payment/cancel"`
}

// SidecarConfig points at the conversion and OCR services.
type SidecarConfig struct {
	ConvertURL string        `envconfig:"CONVERT_URL" default:"http://localhost:3001"`
	OCRURL     string        `envconfig:"OCR_URL" default:"http://localhost:8000"`
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"120s"`
}

type JobsConfig struct {
	ResetInterval   time.Duration `envconfig:"RESET_INTERVAL" default:"10m"`
	ExpiryInterval  time.Duration `envconfig:"EXPIRY_INTERVAL" default:"1h"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	ResetBatchSize  int64         `envconfig:"RESET_BATCH_SIZE" default:"500"`

	// Retention of stored files before the cleanup sweep removes them.
	ArtifactRetention time.Duration `envconfig:"ARTIFACT_RETENTION" default:"24h"`
	SecurityRetention time.Duration `envconfig:"SECURITY_RETENTION" default:"720h"`
	SessionRetention  time.Duration `envconfig:"SESSION_RETENTION" default:"24h"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.Environment = strings.ToLower(cfg.Environment)
	return &cfg, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ServerAddress returns the address the HTTP server listens on
func (c *Config) ServerAddress() string {
	return ":" + c.Port
}

// MaxUploadBytes is the request body ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadSizeMB * 1024 * 1024
}

// Validate checks settings that must not keep their development defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("MONGO_URI is required"))
	}
	if c.Mongo.Database == "" {
		errs = append(errs, errors.New("MONGO_DATABASE is required"))
	}

	switch c.Storage.Driver {
	case "local":
	case "s3", "wasabi", "r2":
		if c.Storage.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("STORAGE_S3_BUCKET is required for the %s driver", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver))
	}

	switch c.Mail.Provider {
	case "none", "smtp":
	case "resend":
		if c.Mail.ResendAPIKey == "" {
			errs = append(errs, errors.New("MAIL_RESEND_API_KEY is required for the resend provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported MAIL_PROVIDER %q", c.Mail.Provider))
	}

	if c.IsProduction() {
		if c.JWT.Secret == defaultJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be changed in production"))
		}
		if c.JWT.RefreshSecret == defaultJWTRefreshSecret {
			errs = append(errs, errors.New("JWT_REFRESH_SECRET must be changed in production"))
		}
		if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required in production"))
		}
	}

	return errors.Join(errs...)
}
