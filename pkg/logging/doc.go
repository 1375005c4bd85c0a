// Package logging provides structured logging configuration for expectd.
//
// It wraps log/slog so every component logs the same way: configurable level,
// text or JSON output, and a shared no-op logger for components constructed
// without one.
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatJSON,
//	})
//	logger.Info("listening", "port", 1080)
//
// Components accept a *slog.Logger in their constructor and fall back to
// logging.Nop() when handed nil.
package logging
