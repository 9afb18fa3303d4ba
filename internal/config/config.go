package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "SWARASHEET"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "swarasheet.db"
	defaultLogLevel        = "info"
	defaultTokenTTLMinutes = 24 * 60
	defaultOTPTTLMinutes   = 5
	defaultPageSize        = 10
	defaultMaxPageSize     = 100
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	SigningSecret   string
	TokenTTL        time.Duration
	AllowSignup     bool
	FixedOTPCode    string
	OTPTTL          time.Duration
	PublicListing   bool
	DefaultPageSize int
	MaxPageSize     int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.allow_signup", true)
	configViper.SetDefault("otp.fixed_code", "")
	configViper.SetDefault("otp.ttl_minutes", defaultOTPTTLMinutes)
	configViper.SetDefault("listing.public", true)
	configViper.SetDefault("listing.default_page_size", defaultPageSize)
	configViper.SetDefault("listing.max_page_size", defaultMaxPageSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		TokenTTL:        time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		AllowSignup:     configViper.GetBool("auth.allow_signup"),
		FixedOTPCode:    configViper.GetString("otp.fixed_code"),
		OTPTTL:          time.Duration(configViper.GetInt("otp.ttl_minutes")) * time.Minute,
		PublicListing:   configViper.GetBool("listing.public"),
		DefaultPageSize: configViper.GetInt("listing.default_page_size"),
		MaxPageSize:     configViper.GetInt("listing.max_page_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("otp.ttl_minutes must be positive")
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("listing page sizes must be positive and default <= max")
	}
	return nil
}
