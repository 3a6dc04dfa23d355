package cli

import (
	"go.uber.org/zap"

	"github.com/tutu-network/painter/internal/daemon"
)

// loadConfig reads the config and builds a logger. Commands other than
// the servers pass quiet to keep their output readable.
func loadConfig(quiet bool) (daemon.Config, *zap.Logger, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return cfg, nil, err
	}
	logCfg := cfg.Logging
	if quiet {
		logCfg.Level = "warn"
		logCfg.File = ""
	}
	logger, err := daemon.NewLogger(logCfg)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

// openDaemon wires the backend in-process for one-shot commands.
func openDaemon() (*daemon.Daemon, error) {
	cfg, logger, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	return daemon.NewWithConfig(cfg, logger)
}
