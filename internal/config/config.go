package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "otpgate"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 10 * time.Minute
	defaultSessionIssuer   = "otpgate"
	defaultSessionTTL      = 12 * time.Hour
	defaultOTPProvider     = "redis"
	defaultOTPMethod       = "SMS"
	defaultOTPCodeTTL      = 5 * time.Minute
	defaultOTPDigits       = 6
	defaultOTPMaxChecks    = 5
	defaultOTPSendsPerHour = 5
	defaultOTPTimeout      = 5 * time.Second
	defaultLoginRateLimit  = 5
	minSessionSecretLen    = 32
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// OTP provider kinds.
const (
	ProviderRedis = "redis"
	ProviderHTTP  = "http"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	LoginRateLimit int
	Session        SessionConfig
	OTP            OTPConfig
}

// SessionConfig controls issued session tokens.
type SessionConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// OTPConfig selects and tunes the one-time code provider.
type OTPConfig struct {
	Provider     string
	Method       string
	CodeTTL      time.Duration
	Digits       int
	MaxChecks    int
	SendsPerHour int
	APIURL       string
	APIKey       string
	Timeout      time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		Session: SessionConfig{
			Secret: os.Getenv("SESSION_SECRET"),
			Issuer: getEnv("SESSION_ISSUER", defaultSessionIssuer),
		},
		OTP: OTPConfig{
			Provider: strings.ToLower(getEnv("OTP_PROVIDER", defaultOTPProvider)),
			Method:   strings.ToUpper(getEnv("OTP_METHOD", defaultOTPMethod)),
			APIURL:   strings.TrimRight(os.Getenv("OTP_API_URL"), "/"),
			APIKey:   os.Getenv("OTP_API_KEY"),
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.Session.TTL, err = durationFromEnv("", "SESSION_TTL", defaultSessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTP.CodeTTL, err = durationFromEnv("", "OTP_CODE_TTL", defaultOTPCodeTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTP.Timeout, err = durationFromEnv("", "OTP_TIMEOUT", defaultOTPTimeout); err != nil {
		return Config{}, err
	}
	if cfg.OTP.Digits, err = intFromEnv("OTP_DIGITS", defaultOTPDigits); err != nil {
		return Config{}, err
	}
	if cfg.OTP.MaxChecks, err = intFromEnv("OTP_MAX_CHECKS", defaultOTPMaxChecks); err != nil {
		return Config{}, err
	}
	if cfg.OTP.SendsPerHour, err = intFromEnv("OTP_SENDS_PER_HOUR", defaultOTPSendsPerHour); err != nil {
		return Config{}, err
	}
	if cfg.LoginRateLimit, err = intFromEnv("LOGIN_RATE_LIMIT", defaultLoginRateLimit); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that Load cannot express with defaults.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set")
	}
	if len(c.Session.Secret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	switch c.OTP.Provider {
	case ProviderRedis:
		if c.OTP.Digits != 6 && c.OTP.Digits != 8 {
			return fmt.Errorf("OTP_DIGITS must be 6 or 8")
		}
		if c.OTP.CodeTTL <= 0 {
			return fmt.Errorf("OTP_CODE_TTL must be positive")
		}
	case ProviderHTTP:
		if c.OTP.APIURL == "" {
			return fmt.Errorf("OTP_API_URL must be set when OTP_PROVIDER=%s", ProviderHTTP)
		}
		if c.OTP.APIKey == "" {
			return fmt.Errorf("OTP_API_KEY must be set when OTP_PROVIDER=%s", ProviderHTTP)
		}
	default:
		return fmt.Errorf("unknown OTP_PROVIDER %q", c.OTP.Provider)
	}

	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationFromEnv prefers an integer seconds variable, then a Go duration string.
func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
