// Package logger builds configured log/slog loggers for the queue runtime.
//
// It supports JSON and text output, level selection, static attributes, and
// environment-driven configuration through the Config struct:
//
//	var cfg logger.Config
//	config.MustLoad(&cfg)
//	log := logger.New(logger.WithConfig(cfg), logger.WithAttr(slog.String("service", "queue")))
//	logger.SetAsDefault(log)
package logger
