package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/lure/internal/extractor"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

type Config struct {
	Port        int
	LogLevel    string
	APIKey      string
	DatabaseURL string
	NatsURL     string
	NatsToken   string

	AnthropicAPIKey   string
	AnthropicModel    string
	GenerationTimeout time.Duration
	HistoryWindow     int
	MaxTurns          int

	CallbackURL     string
	CallbackAPIKey  string
	CallbackTimeout time.Duration

	DeliveryMaxAttempts    int
	DeliveryInitialBackoff time.Duration
	DeliveryMaxBackoff     time.Duration
	DeliveryWorkers        int

	SessionTTL time.Duration
	TuningFile string
}

func Load() Config {
	return Config{
		Port:        envInt("LURE_PORT", 8080),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIKey:      envStr("HONEYPOT_API_KEY", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),

		AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    envStr("LURE_MODEL", "claude-3-5-haiku-latest"),
		GenerationTimeout: envDuration("LURE_GENERATION_TIMEOUT", 4*time.Second),
		HistoryWindow:     envInt("LURE_HISTORY_WINDOW", 6),
		MaxTurns:          envInt("LURE_MAX_TURNS", 20),

		CallbackURL:     envStr("LURE_CALLBACK_URL", ""),
		CallbackAPIKey:  envStr("LURE_CALLBACK_API_KEY", ""),
		CallbackTimeout: envDuration("LURE_CALLBACK_TIMEOUT", 10*time.Second),

		DeliveryMaxAttempts:    envInt("LURE_DELIVERY_MAX_ATTEMPTS", 5),
		DeliveryInitialBackoff: envDuration("LURE_DELIVERY_INITIAL_BACKOFF", 500*time.Millisecond),
		DeliveryMaxBackoff:     envDuration("LURE_DELIVERY_MAX_BACKOFF", 30*time.Second),
		DeliveryWorkers:        envInt("LURE_DELIVERY_WORKERS", 2),

		SessionTTL: envDuration("LURE_SESSION_TTL", 24*time.Hour),
		TuningFile: envStr("LURE_TUNING_FILE", ""),
	}
}

// Validate reports settings the process cannot start without.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("HONEYPOT_API_KEY is required")
	}
	if c.MaxTurns < 2 {
		return fmt.Errorf("LURE_MAX_TURNS must be at least 2, got %d", c.MaxTurns)
	}
	return nil
}

// Tuning holds the scoring vocabulary and thresholds. Fields left out of the
// tuning file keep their defaults.
type Tuning struct {
	Extractor  extractor.Config `yaml:"extractor"`
	Classifier stage.Rules      `yaml:"classifier"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Extractor:  extractor.DefaultConfig(),
		Classifier: stage.DefaultRules(),
	}
}

// LoadTuning overlays the YAML file at path on the defaults. An empty path
// returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning file: %w", err)
	}
	return t, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
