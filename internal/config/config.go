package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	DefaultGeocoderURL = "https://nominatim.openstreetmap.org/reverse"
	DefaultMapBaseURL  = "https://www.google.com/maps/search/?api=1&query="
)

type Config struct {
	DatabaseDSN    string `env:"DATABASE_DSN,required=true"`
	DatabaseDriver string `env:"DATABASE_DRIVER,default=postgres"`
	RedisURL       string `env:"REDIS_URL,required=true"`
	RabbitMQURL    string `env:"RABBITMQ_URL,required=true"`
	MQTTBrokerURL  string `env:"MQTT_BROKER_URL,required=true"`
	MQTTClientID   string `env:"MQTT_CLIENT_ID,default=safeher-api"`
	DeviceID       string `env:"DEVICE_ID,default=default"`
	SMSGatewayURL  string `env:"SMS_GATEWAY_URL,required=true"`
	GeocoderURL    string `env:"GEOCODER_URL"`
	AuthServiceURL string `env:"AUTH_SERVICE_URL,required=true"`
	MapBaseURL     string `env:"MAP_BASE_URL"`

	LocationTimeout      time.Duration `env:"LOCATION_TIMEOUT,default=15s"`
	ShakeThreshold       float64       `env:"SHAKE_THRESHOLD,default=15.0"`
	ShakeDebounce        time.Duration `env:"SHAKE_DEBOUNCE,default=1s"`
	ShakeRequiredCount   int           `env:"SHAKE_REQUIRED_COUNT,default=1"`
	ShakeWindow          time.Duration `env:"SHAKE_WINDOW,default=3s"`
	TriggerMaxAttempts   int           `env:"TRIGGER_MAX_ATTEMPTS,default=5"`
	TriggerRetryInterval time.Duration `env:"TRIGGER_RETRY_INTERVAL,default=1s"`
	PromptTimeout        time.Duration `env:"PROMPT_TIMEOUT,default=10s"`
	ComposerTimeout      time.Duration `env:"COMPOSER_TIMEOUT,default=2m"`

	SMSRateLimitPerSec int    `env:"SMS_RATE_LIMIT_PER_SEC,default=10"`
	APIPort            int    `env:"API_PORT,default=8080"`
	SentinelPort       int    `env:"SENTINEL_PORT,default=9091"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
	LogFile            string `env:"LOG_FILE"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	// The map link default contains '=' which the env tag syntax cannot carry.
	if strings.TrimSpace(c.GeocoderURL) == "" {
		c.GeocoderURL = DefaultGeocoderURL
	}
	if strings.TrimSpace(c.MapBaseURL) == "" {
		c.MapBaseURL = DefaultMapBaseURL
	}

	switch strings.ToLower(strings.TrimSpace(c.DatabaseDriver)) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.TriggerMaxAttempts < 1 {
		return fmt.Errorf("TRIGGER_MAX_ATTEMPTS must be >= 1")
	}
	if c.TriggerRetryInterval <= 0 {
		return fmt.Errorf("TRIGGER_RETRY_INTERVAL must be positive")
	}
	if c.LocationTimeout <= 0 {
		return fmt.Errorf("LOCATION_TIMEOUT must be positive")
	}
	if c.ComposerTimeout <= 0 {
		return fmt.Errorf("COMPOSER_TIMEOUT must be positive")
	}
	if c.SMSRateLimitPerSec < 0 {
		return fmt.Errorf("SMS_RATE_LIMIT_PER_SEC must be >= 0")
	}
	if c.ShakeRequiredCount < 1 {
		return fmt.Errorf("SHAKE_REQUIRED_COUNT must be >= 1")
	}
	return nil
}
