// Package log provides structured logging for the notifier services.
//
// The package exposes a small Logger interface backed by log/slog through a
// bridge handler, so components depend on the interface rather than a concrete
// logging library. Loggers are constructed explicitly and passed down via
// dependency injection; there is no package-level default logger.
//
//	logger := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	logger.Info("watcher started", log.Str("cursor", cursor))
package log
