// Package config provides loading and environment overlay for the notifier
// configuration. It exposes a Default() baseline, JSON file loading, and a
// NOTIFIER_* environment overlay applied on top.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/operations-notifier.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
