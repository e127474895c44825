package config

import (
	"os"
	"strconv"
)

// FromEnv overlays NOTIFIER_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("NOTIFIER_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = n
		}
	}
	if v := os.Getenv("NOTIFIER_HORIZON"); v != "" {
		cfg.Horizon = v
	}
	if v := os.Getenv("NOTIFIER_STORAGE_PROVIDER"); v != "" {
		cfg.StorageProvider = v
	}
	if v := os.Getenv("NOTIFIER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("NOTIFIER_SIGNATURE_SECRET"); v != "" {
		cfg.SignatureSecret = v
	}
	if v := os.Getenv("NOTIFIER_AUTHORIZATION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Authorization = b
		}
	}
	if v := os.Getenv("NOTIFIER_MAX_ACTIVE_SUBSCRIPTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxActiveSubscriptions = n
		}
	}
	if v := os.Getenv("NOTIFIER_MAX_USER_ACTIVE_SUBSCRIPTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxUserActiveSubscriptions = n
		}
	}
	if v := os.Getenv("NOTIFIER_NOTIFICATION_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NotificationConcurrency = n
		}
	}
	if v := os.Getenv("NOTIFIER_REACTION_RESPONSE_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReactionResponseTimeout = n
		}
	}
	if v := os.Getenv("NOTIFIER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
