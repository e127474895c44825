package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// APIPort is the listen port for the HTTP API server.
	APIPort int `json:"apiPort"`
	// Horizon is the base URL of the transaction stream server.
	Horizon string `json:"horizon"`
	// StorageProvider selects the persistence engine ("memory" or "pebble").
	StorageProvider string `json:"storageProvider"`
	// DataDir is the data directory for the pebble provider.
	DataDir string `json:"dataDir"`
	// SignatureSecret is the strkey ed25519 seed used to sign outgoing
	// notifications.
	SignatureSecret string `json:"signatureSecret"`
	// Authorization enables per-user subscription quotas.
	Authorization bool `json:"authorization"`
	// MaxActiveSubscriptions caps the total number of active subscriptions.
	MaxActiveSubscriptions int `json:"maxActiveSubscriptions"`
	// MaxUserActiveSubscriptions caps active subscriptions per user when
	// Authorization is enabled.
	MaxUserActiveSubscriptions int `json:"maxUserActiveSubscriptions"`
	// NotificationConcurrency caps concurrently in-flight deliveries.
	NotificationConcurrency int `json:"notificationConcurrency"`
	// ReactionResponseTimeout bounds a single webhook POST, in seconds.
	ReactionResponseTimeout int `json:"reactionResponseTimeout"`
	// LogLevel is the minimum log level ("debug", "info", "warn", "error").
	LogLevel string `json:"logLevel"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		APIPort:                    4021,
		Horizon:                    "https://horizon.stellar.org",
		StorageProvider:            "memory",
		DataDir:                    DefaultDataDir(),
		MaxActiveSubscriptions:     10000,
		MaxUserActiveSubscriptions: 20,
		NotificationConcurrency:    100,
		ReactionResponseTimeout:    10,
		LogLevel:                   "info",
	}
}

// ReactionTimeout returns the webhook POST timeout as a duration.
func (c Config) ReactionTimeout() time.Duration {
	return time.Duration(c.ReactionResponseTimeout) * time.Second
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration consistency before startup.
func (c Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("config: invalid apiPort %d", c.APIPort)
	}
	if c.Horizon == "" {
		return fmt.Errorf("config: horizon base URL is required")
	}
	switch c.StorageProvider {
	case "memory", "pebble":
	default:
		return fmt.Errorf("config: unknown storage provider %q", c.StorageProvider)
	}
	if c.StorageProvider == "pebble" && c.DataDir == "" {
		return fmt.Errorf("config: dataDir is required for the pebble provider")
	}
	if c.NotificationConcurrency <= 0 {
		return fmt.Errorf("config: notificationConcurrency must be positive")
	}
	if c.ReactionResponseTimeout <= 0 {
		return fmt.Errorf("config: reactionResponseTimeout must be positive")
	}
	return nil
}
