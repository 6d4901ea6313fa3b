// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env            string `mapstructure:"APP_ENV"`
	Port           string `mapstructure:"PORT"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	DBDriver          string `mapstructure:"DB_DRIVER"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DatabaseToken     string `mapstructure:"DATABASE_AUTH_TOKEN"`
	DatabaseReadURL   string `mapstructure:"DATABASE_READ_URL"`
	DatabaseReadToken string `mapstructure:"DATABASE_READ_AUTH_TOKEN"`
	DBMaxOpenConns    int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxMinutes  int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL string `mapstructure:"REDIS_URL"`

	IdentityAPIURL         string `mapstructure:"IDENTITY_API_URL"`
	IdentitySecretKey      string `mapstructure:"IDENTITY_SECRET_KEY"`
	IdentityPublishableKey string `mapstructure:"IDENTITY_PUBLISHABLE_KEY"`
	IdentityJWTKey         string `mapstructure:"IDENTITY_JWT_KEY"`
	IdentityJWTSecret      string `mapstructure:"IDENTITY_JWT_SECRET"`
	IdentityIssuer         string `mapstructure:"IDENTITY_ISSUER"`

	BlobDriver    string `mapstructure:"BLOB_DRIVER"`
	BlobBucket    string `mapstructure:"BLOB_BUCKET"`
	BlobRegion    string `mapstructure:"BLOB_REGION"`
	BlobEndpoint  string `mapstructure:"BLOB_ENDPOINT"`
	BlobAccessKey string `mapstructure:"BLOB_ACCESS_KEY"`
	BlobSecretKey string `mapstructure:"BLOB_SECRET_KEY"`
	BlobPublicURL string `mapstructure:"BLOB_PUBLIC_URL"`
	BlobLocalDir  string `mapstructure:"BLOB_LOCAL_DIR"`
	MediaMaxMB    int    `mapstructure:"MEDIA_MAX_UPLOAD_MB"`

	BiometricAppID  string `mapstructure:"BIOMETRIC_APP_ID"`
	BiometricAPIKey string `mapstructure:"BIOMETRIC_API_KEY"`
	BiometricAPIURL string `mapstructure:"BIOMETRIC_API_URL"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("FEATURE_FLAGS", "face_verification=on")

	viper.SetDefault("DB_DRIVER", "sqlite")
	viper.SetDefault("DATABASE_URL", "file:facefeed.db?_foreign_keys=on&_busy_timeout=5000")
	viper.SetDefault("DATABASE_AUTH_TOKEN", "")
	viper.SetDefault("DATABASE_READ_URL", "")
	viper.SetDefault("DATABASE_READ_AUTH_TOKEN", "")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("IDENTITY_API_URL", "https://api.clerk.com/v1")
	viper.SetDefault("IDENTITY_SECRET_KEY", "")
	viper.SetDefault("IDENTITY_PUBLISHABLE_KEY", "")
	viper.SetDefault("IDENTITY_JWT_KEY", "")
	viper.SetDefault("IDENTITY_JWT_SECRET", "dev-session-secret-change-in-production")
	viper.SetDefault("IDENTITY_ISSUER", "")

	viper.SetDefault("BLOB_DRIVER", "local")
	viper.SetDefault("BLOB_BUCKET", "")
	viper.SetDefault("BLOB_REGION", "us-east-1")
	viper.SetDefault("BLOB_ENDPOINT", "")
	viper.SetDefault("BLOB_ACCESS_KEY", "")
	viper.SetDefault("BLOB_SECRET_KEY", "")
	viper.SetDefault("BLOB_PUBLIC_URL", "http://localhost:8375/uploads")
	viper.SetDefault("BLOB_LOCAL_DIR", "./uploads")
	viper.SetDefault("MEDIA_MAX_UPLOAD_MB", 100)

	viper.SetDefault("BIOMETRIC_APP_ID", "")
	viper.SetDefault("BIOMETRIC_API_KEY", "")
	viper.SetDefault("BIOMETRIC_API_URL", "https://api.faceio.net")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.BlobDriver = strings.ToLower(strings.TrimSpace(c.BlobDriver))
	c.IdentityAPIURL = strings.TrimRight(c.IdentityAPIURL, "/")
	c.BiometricAPIURL = strings.TrimRight(c.BiometricAPIURL, "/")
	c.BlobPublicURL = strings.TrimRight(c.BlobPublicURL, "/")
}

// IsProduction reports whether the configuration targets production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// BlobPublicHost returns the host of BLOB_PUBLIC_URL, used to allowlist uploaded video links.
func (c *Config) BlobPublicHost() string {
	u, err := url.Parse(c.BlobPublicURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.BlobDriver {
	case "local":
		if c.BlobLocalDir == "" {
			return errors.New("BLOB_LOCAL_DIR is required for the local blob driver")
		}
	case "s3":
		if c.BlobBucket == "" {
			return errors.New("BLOB_BUCKET is required for the s3 blob driver")
		}
	default:
		return fmt.Errorf("BLOB_DRIVER must be s3 or local, got %q", c.BlobDriver)
	}
	if c.IdentityJWTKey == "" && c.IdentityJWTSecret == "" {
		return errors.New("one of IDENTITY_JWT_KEY or IDENTITY_JWT_SECRET is required")
	}
	if c.MediaMaxMB <= 0 {
		return errors.New("MEDIA_MAX_UPLOAD_MB must be positive")
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return errors.New("TRACING_SAMPLE_RATIO must be between 0 and 1")
	}

	if c.IsProduction() {
		if c.IdentitySecretKey == "" {
			return errors.New("IDENTITY_SECRET_KEY is required in production")
		}
		if c.IdentityJWTKey == "" && c.IdentityJWTSecret == "dev-session-secret-change-in-production" {
			return errors.New("IDENTITY_JWT_SECRET must be changed from the default value in production")
		}
		if c.IdentityJWTKey == "" && len(c.IdentityJWTSecret) < 32 {
			return errors.New("IDENTITY_JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver == "sqlite" && c.DatabaseToken != "" {
			log.Println("WARNING: DATABASE_AUTH_TOKEN is ignored by the sqlite driver.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}
