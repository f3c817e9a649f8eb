// Package config provides configuration loading using koanf.
// Precedence: environment, then the optional Secrets Manager overlay, then
// compiled defaults.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

// EnvPrefix is the prefix of every environment variable read by Load. Nested
// keys are separated by a double underscore:
// MESSAGING_AFRIKSMS__CLIENT_ID -> afriksms.client_id.
const EnvPrefix = "MESSAGING_"

// OTP store backends.
const (
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
	StoreMemory   = "memory"
)

// SMS channel drivers.
const (
	DriverAfrikSMS = "afriksms"
	DriverSNS      = "sns"
	DriverLog      = "log"
)

// Config holds all service configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	// Logging configuration
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	HTTPPort       int    `koanf:"http_port"`
	DefaultChannel string `koanf:"default_channel"`
	// SMSDriver selects the gateway behind the "sms" channel.
	SMSDriver string `koanf:"sms_driver"`

	// Vendor configurations
	AfrikSMS AfrikSMSConfig `koanf:"afriksms"`
	Twilio   TwilioConfig   `koanf:"twilio"`
	SNS      SNSConfig      `koanf:"sns"`

	OTP   OTPConfig   `koanf:"otp"`
	Phone PhoneConfig `koanf:"phone"`

	// Infrastructure configurations
	Redis    RedisConfig    `koanf:"redis"`
	DynamoDB DynamoDBConfig `koanf:"dynamodb"`
	AWS      AWSConfig      `koanf:"aws"`
	Secrets  SecretsConfig  `koanf:"secrets"`

	// OpenTelemetry configuration
	OTEL OTELConfig `koanf:"otel"`
}

// AfrikSMSConfig holds the SMS vendor credentials and transport settings.
type AfrikSMSConfig struct {
	ClientID string              `koanf:"client_id"`
	APIKey   domain.SecretString `koanf:"api_key"`
	SenderID string              `koanf:"sender_id"`
	BaseURL  string              `koanf:"base_url"`
	Timeout  time.Duration       `koanf:"timeout"`
	Retry    RetryConfig         `koanf:"retry"`
}

// RetryConfig bounds connectivity retries. Times counts total attempts.
type RetryConfig struct {
	Times int           `koanf:"times"`
	Sleep time.Duration `koanf:"sleep"`
}

// TwilioConfig holds the WhatsApp vendor credentials.
type TwilioConfig struct {
	SID          string              `koanf:"sid"`
	AuthToken    domain.SecretString `koanf:"auth_token"`
	WhatsAppFrom string              `koanf:"whatsapp_from"`
	Timeout      time.Duration       `koanf:"timeout"`
}

// SNSConfig holds Amazon SNS SMS settings.
type SNSConfig struct {
	SenderID string `koanf:"sender_id"`
}

// OTPConfig holds one-time code settings shared by every channel.
type OTPConfig struct {
	Length        int               `koanf:"length"`
	ExpiryMinutes int               `koanf:"expiry_minutes"`
	MaxAttempts   int               `koanf:"max_attempts"`
	Message       string            `koanf:"message"`
	Store         string            `koanf:"store"`
	KeyPrefix     string            `koanf:"key_prefix"`
	WhatsApp      OTPWhatsAppConfig `koanf:"whatsapp"`
}

// Expiry returns the code lifetime.
func (c OTPConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

// OTPWhatsAppConfig holds the pre-approved template used for WhatsApp codes.
type OTPWhatsAppConfig struct {
	TemplateSID  string `koanf:"template_sid"`
	CodeVariable string `koanf:"code_variable"`
}

// PhoneConfig holds phone formatting settings.
type PhoneConfig struct {
	DefaultCountryCode string `koanf:"default_country_code"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string              `koanf:"addr"`
	Password domain.SecretString `koanf:"password"`
	DB       int                 `koanf:"db"`
	Timeout  time.Duration       `koanf:"timeout"`
}

// DynamoDBConfig holds DynamoDB configuration.
type DynamoDBConfig struct {
	Endpoint string        `koanf:"endpoint"` // Empty for production (uses default AWS endpoint)
	Table    string        `koanf:"table"`
	Timeout  time.Duration `koanf:"timeout"`
}

// AWSConfig holds AWS SDK configuration.
type AWSConfig struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"` // LocalStack endpoint for development
}

// SecretsConfig names the Secrets Manager secret overlaid on vendor
// credentials. Empty disables the overlay.
type SecretsConfig struct {
	ID string `koanf:"id"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint    string `koanf:"endpoint"` // Empty disables OTLP export
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// defaults returns a Config with compiled default values.
func defaults() *Config {
	return &Config{
		Environment:    "local",
		LogLevel:       "info",
		LogFormat:      "json",
		HTTPPort:       8080,
		DefaultChannel: string(domain.DefaultChannel),
		SMSDriver:      DriverAfrikSMS,

		AfrikSMS: AfrikSMSConfig{
			SenderID: domain.DefaultSenderID,
			BaseURL:  domain.DefaultAfrikSMSURL,
			Timeout:  domain.DefaultVendorTimeout,
			Retry: RetryConfig{
				Times: domain.DefaultRetryTimes,
				Sleep: domain.DefaultRetrySleep,
			},
		},
		Twilio: TwilioConfig{
			Timeout: domain.DefaultVendorTimeout,
		},
		SNS: SNSConfig{
			SenderID: domain.DefaultSenderID,
		},
		OTP: OTPConfig{
			Length:        domain.DefaultOTPLength,
			ExpiryMinutes: int(domain.DefaultOTPExpiry / time.Minute),
			MaxAttempts:   domain.DefaultOTPMaxAttempts,
			Message:       domain.DefaultOTPMessage,
			Store:         StoreRedis,
			WhatsApp: OTPWhatsAppConfig{
				CodeVariable: domain.DefaultOTPCodeVariable,
			},
		},
		Phone: PhoneConfig{
			DefaultCountryCode: domain.DefaultCountryCode,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			DB:      0,
			Timeout: domain.RedisTimeout,
		},
		DynamoDB: DynamoDBConfig{
			Table:   "otp_codes",
			Timeout: domain.DynamoDBTimeout,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		OTEL: OTELConfig{
			ServiceName: "messaging-gateway",
		},
	}
}

// Load loads configuration from compiled defaults overlaid with MESSAGING_*
// environment variables, then validates it.
//
// Vendor credentials are not checked here: each gateway validates its own
// keys when first constructed.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	cfg := defaults()

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and environment-specific requirements.
func Validate(cfg *Config) error {
	if cfg.OTP.Length < domain.MinOTPLength || cfg.OTP.Length > domain.MaxOTPLength {
		return fmt.Errorf("%w: otp.length must be between %d and %d",
			domain.ErrInvalidInput, domain.MinOTPLength, domain.MaxOTPLength)
	}
	if cfg.OTP.ExpiryMinutes <= 0 {
		return fmt.Errorf("%w: otp.expiry_minutes must be positive", domain.ErrInvalidInput)
	}
	if cfg.OTP.MaxAttempts <= 0 {
		return fmt.Errorf("%w: otp.max_attempts must be positive", domain.ErrInvalidInput)
	}

	switch cfg.OTP.Store {
	case StoreRedis, StoreDynamoDB, StoreMemory:
	default:
		return fmt.Errorf("%w: otp.store %q", domain.ErrInvalidInput, cfg.OTP.Store)
	}

	switch cfg.SMSDriver {
	case DriverAfrikSMS, DriverSNS, DriverLog:
	default:
		return fmt.Errorf("%w: sms_driver %q", domain.ErrInvalidInput, cfg.SMSDriver)
	}

	if cfg.DefaultChannel == "" {
		return fmt.Errorf("%w: default_channel", domain.ErrConfigRequired)
	}

	return validateRequired(cfg)
}

// validateRequired checks that required configuration is present.
func validateRequired(cfg *Config) error {
	// In local environment, most fields have sensible defaults
	if cfg.Environment == "local" {
		return nil
	}

	if cfg.IsProd() {
		if cfg.SMSDriver == DriverLog {
			return fmt.Errorf("%w: sms_driver log writes message content to logs", domain.ErrInvalidInput)
		}
		if cfg.OTP.Store == StoreRedis && cfg.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr", domain.ErrConfigRequired)
		}
		if cfg.OTP.Store == StoreDynamoDB && cfg.DynamoDB.Table == "" {
			return fmt.Errorf("%w: dynamodb.table", domain.ErrConfigRequired)
		}
		if cfg.OTP.Store == StoreMemory {
			return fmt.Errorf("%w: otp.store memory is single-instance only", domain.ErrInvalidInput)
		}
	}

	return nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
