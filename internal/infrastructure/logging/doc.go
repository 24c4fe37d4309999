// Package logging provides structured logging for the handset agent.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same shape: JSON in production, text during bench work, and a
// fixed set of default fields (service, version, agent).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("device attached", "serial", serial)
//	devLog := logger.ForDevice(serial)
//	devLog.Error("install failed", "tool", "minicap", "error", err)
package logging
