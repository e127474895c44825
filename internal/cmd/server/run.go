// Package serverrun assembles and runs the full notifier process: storage,
// ingestion, delivery, and the HTTP API.
package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stellar-expert/operations-notifier/internal/config"
	"github.com/stellar-expert/operations-notifier/internal/horizon"
	"github.com/stellar-expert/operations-notifier/internal/ingest"
	"github.com/stellar-expert/operations-notifier/internal/notifier"
	"github.com/stellar-expert/operations-notifier/internal/observer"
	httpserver "github.com/stellar-expert/operations-notifier/internal/server/http"
	"github.com/stellar-expert/operations-notifier/internal/signing"
	"github.com/stellar-expert/operations-notifier/internal/storage"
	"github.com/stellar-expert/operations-notifier/internal/storage/memory"
	"github.com/stellar-expert/operations-notifier/internal/storage/pebblestore"
	"github.com/stellar-expert/operations-notifier/pkg/log"
)

// Version is reported by the status endpoint.
const Version = "1.1.0"

// Run starts the notifier and blocks until ctx is canceled.
func Run(ctx context.Context, cfg config.Config) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.NewLogger(
		log.WithLevel(level),
		log.WithFormatter(&log.TextFormatter{}),
		log.WithOutput(log.NewConsoleOutput()),
	)
	// stdlib logs (pebble internals) flow through the shared logger
	log.RedirectStdLog(logger)

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	signer, err := newSigner(cfg, logger)
	if err != nil {
		return err
	}

	source := horizon.NewClient(cfg.Horizon, logger)

	ntf := notifier.New(notifier.Options{
		Store:       store,
		Signer:      signer,
		Logger:      logger,
		Concurrency: cfg.NotificationConcurrency,
		Timeout:     cfg.ReactionTimeout(),
	})
	watcher := ingest.NewWatcher(ingest.WatcherOptions{
		Source: source,
		Store:  store,
		// the flag flip must go through the notifier lock before the wake
		OnNotify: func(subIDs []string) {
			ntf.MarkPending(subIDs)
			ntf.Wake()
		},
		Logger: logger,
	})
	obs := observer.New(observer.Options{
		Store:                      store,
		Watcher:                    watcher,
		Notifier:                   ntf,
		Logger:                     logger,
		MaxActiveSubscriptions:     cfg.MaxActiveSubscriptions,
		MaxUserActiveSubscriptions: cfg.MaxUserActiveSubscriptions,
		AuthorizationEnabled:       cfg.Authorization,
	})
	// the observer registry feeds both the matcher and the scheduler
	watcher.SetSubscriptions(obs)
	ntf.SetSubscriptions(obs)

	logger.Info("starting operations notifier",
		log.Str("version", Version),
		log.Str("horizon", cfg.Horizon),
		log.Str("storage", cfg.StorageProvider),
		log.Int("port", cfg.APIPort))

	if err := obs.Start(sctx); err != nil {
		return fmt.Errorf("start observer: %w", err)
	}
	defer obs.Stop()

	srv := httpserver.New(httpserver.Options{
		Observer:      obs,
		Signer:        signer,
		Logger:        logger,
		Authorization: cfg.Authorization,
		Version:       Version,
	})
	defer srv.Close()
	return srv.ListenAndServe(sctx, fmt.Sprintf(":%d", cfg.APIPort))
}

func openStore(cfg config.Config) (storage.Store, error) {
	switch cfg.StorageProvider {
	case "pebble":
		return pebblestore.Open(pebblestore.Options{
			DataDir: cfg.DataDir,
			Fsync:   pebblestore.FsyncModeInterval,
		})
	default:
		return memory.New(), nil
	}
}

// newSigner builds the delivery signer from the configured secret, falling
// back to an ephemeral keypair when none is set.
func newSigner(cfg config.Config, logger log.Logger) (*signing.Signer, error) {
	if cfg.SignatureSecret != "" {
		signer, err := signing.New(cfg.SignatureSecret)
		if err != nil {
			return nil, fmt.Errorf("invalid signature secret: %w", err)
		}
		if !signer.CanSign() {
			return nil, fmt.Errorf("signature secret must be a seed, not a public key")
		}
		return signer, nil
	}
	signer, err := signing.Random()
	if err != nil {
		return nil, err
	}
	logger.Warn("no signature secret configured, using an ephemeral keypair",
		log.Str("publicKey", signer.PublicKey()))
	return signer, nil
}
