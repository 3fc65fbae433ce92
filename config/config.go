// Package config loads client settings from the environment and an optional
// .env file using Viper, and validates them before a client is built.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tj-smith47/thingsboard-go"
)

// DefaultEnvFile is read by Load when no path is given.
const DefaultEnvFile = ".env"

// Config holds the settings needed to talk to a ThingsBoard server.
type Config struct {
	// URL is the server base URL (e.g. https://demo.thingsboard.io).
	URL string `mapstructure:"THINGSBOARD_URL" validate:"required,url"`
	// Username and Password are a tenant user's login.
	Username string `mapstructure:"THINGSBOARD_USERNAME" validate:"required"`
	Password string `mapstructure:"THINGSBOARD_PASSWORD" validate:"required"`
	// TokenTimeout bounds how long a login token is reused (default 10m).
	TokenTimeout time.Duration `mapstructure:"THINGSBOARD_TOKEN_TIMEOUT" validate:"gt=0"`
	// RequestTimeout is the HTTP timeout per request (default 30s).
	RequestTimeout time.Duration `mapstructure:"THINGSBOARD_REQUEST_TIMEOUT" validate:"gt=0"`
	// RateLimitRPS throttles requests client-side; 0 disables throttling.
	RateLimitRPS   float64 `mapstructure:"THINGSBOARD_RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst int     `mapstructure:"THINGSBOARD_RATE_LIMIT_BURST" validate:"gte=0"`
	// MQTTBroker is the device MQTT endpoint (e.g. tcp://host:1883); optional.
	MQTTBroker string `mapstructure:"THINGSBOARD_MQTT_BROKER" validate:"omitempty,url"`
	// LogLevel is one of debug, info, warn, error (default info).
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	// Env selects the log encoder: "production" logs JSON, anything else
	// logs human-readable console output.
	Env string `mapstructure:"APP_ENV"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their environment variable names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Load reads path (DefaultEnvFile when empty), then overlays the process
// environment. A missing file is not an error. The result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultEnvFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	v.SetDefault("THINGSBOARD_URL", "")
	v.SetDefault("THINGSBOARD_USERNAME", "")
	v.SetDefault("THINGSBOARD_PASSWORD", "")
	v.SetDefault("THINGSBOARD_TOKEN_TIMEOUT", thingsboard.DefaultTokenTimeout)
	v.SetDefault("THINGSBOARD_REQUEST_TIMEOUT", thingsboard.DefaultTimeout)
	v.SetDefault("THINGSBOARD_RATE_LIMIT_RPS", 0)
	v.SetDefault("THINGSBOARD_RATE_LIMIT_BURST", 1)
	v.SetDefault("THINGSBOARD_MQTT_BROKER", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and reports all failures together.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config: %w", err)
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("config: %s failed %q check", fe.Field(), fe.Tag()))
	}
	return errors.Join(errs...)
}

// Logger builds a zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if c.Env == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zc.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// Options translates the settings into client options. extra options are
// applied last.
func (c *Config) Options(logger *zap.Logger, extra ...thingsboard.Option) []thingsboard.Option {
	opts := []thingsboard.Option{
		thingsboard.WithTimeout(c.RequestTimeout),
		thingsboard.WithTokenTimeout(c.TokenTimeout),
		thingsboard.WithLogger(logger),
	}
	if c.RateLimitRPS > 0 {
		opts = append(opts, thingsboard.WithRateLimit(c.RateLimitRPS, c.RateLimitBurst))
	}
	return append(opts, extra...)
}

// NewClient builds a client from the settings.
func (c *Config) NewClient(logger *zap.Logger, extra ...thingsboard.Option) (*thingsboard.Client, error) {
	return thingsboard.NewClient(c.URL, c.Username, c.Password, c.Options(logger, extra...)...)
}
