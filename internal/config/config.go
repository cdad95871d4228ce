package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Port string `mapstructure:"PORT" validate:"required,numeric"`

	// Remote auth/weather backend.
	BackendBaseURL    string        `mapstructure:"BACKEND_BASE_URL" validate:"required,url"`
	HTTPTimeout       time.Duration `mapstructure:"HTTP_TIMEOUT" validate:"gt=0"`
	HealthTimeout     time.Duration `mapstructure:"HEALTH_TIMEOUT" validate:"gt=0"`
	HealthInterval    time.Duration `mapstructure:"HEALTH_INTERVAL" validate:"gte=1s"`
	BackendRPS        float64       `mapstructure:"BACKEND_RPS" validate:"gte=0"`
	BackendBurst      int           `mapstructure:"BACKEND_BURST" validate:"gte=0"`
	BackendMaxRetries int           `mapstructure:"BACKEND_MAX_RETRIES" validate:"gte=0,lte=5"`

	// Browser sessions.
	SessionIdleTTL       time.Duration `mapstructure:"SESSION_IDLE_TTL" validate:"gt=0"`
	SessionSweepInterval time.Duration `mapstructure:"SESSION_SWEEP_INTERVAL" validate:"gte=1s"`
	TokenCacheMB         int           `mapstructure:"TOKEN_CACHE_MB" validate:"gte=4"`
	CookieSecure         bool          `mapstructure:"COOKIE_SECURE"`
	CookieDomain         string        `mapstructure:"COOKIE_DOMAIN"`
	LoginPath            string        `mapstructure:"LOGIN_PATH" validate:"required,startswith=/"`

	// Dashboard.
	ForecastDays   int `mapstructure:"FORECAST_DAYS" validate:"gte=1,lte=5"`
	RecentSearches int `mapstructure:"RECENT_SEARCHES" validate:"gte=1"`

	LogLevel       string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
	LogPretty      bool   `mapstructure:"LOG_PRETTY"`
	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`
}

var defaults = map[string]any{
	"PORT":                   "8080",
	"HTTP_TIMEOUT":           "10s",
	"HEALTH_TIMEOUT":         "3s",
	"HEALTH_INTERVAL":        "5s",
	"BACKEND_RPS":            10,
	"BACKEND_BURST":          20,
	"BACKEND_MAX_RETRIES":    2,
	"SESSION_IDLE_TTL":       "30m",
	"SESSION_SWEEP_INTERVAL": "1m",
	"TOKEN_CACHE_MB":         16,
	"COOKIE_SECURE":          true,
	"COOKIE_DOMAIN":          "",
	"LOGIN_PATH":             "/login",
	"FORECAST_DAYS":          5,
	"RECENT_SEARCHES":        5,
	"LOG_LEVEL":              "info",
	"LOG_PRETTY":             false,
	"METRICS_ENABLED":        true,
	"BACKEND_BASE_URL":       "",
}

// Load reads configuration from the environment (after an optional .env) with
// sensible defaults. A YAML file named by CONFIG_FILE is merged underneath the
// environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Err(err).Msg("no .env file loaded")
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*AppConfig, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
