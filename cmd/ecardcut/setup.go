package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
	"github.com/aatumaykin/ecardcut/internal/config"
	"github.com/aatumaykin/ecardcut/internal/constants"
	"github.com/aatumaykin/ecardcut/internal/logger"
	"github.com/aatumaykin/ecardcut/internal/retry"
	"github.com/aatumaykin/ecardcut/internal/storage"
	"github.com/dustin/go-humanize"
)

// loadConfig reads the .env file and the configuration. When --config is not
// given and the default file does not exist, built-in defaults are used.
func loadConfig() (*config.Config, string, error) {
	if err := config.LoadEnvOptional(envPath); err != nil {
		return nil, "", fmt.Errorf("failed to load %s: %w", envPath, err)
	}

	path := configPath
	if path == "" {
		path = constants.DefaultConfigPath
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			cfg := config.Default()
			return &cfg, "", nil
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// loadValidConfig is loadConfig followed by Validate.
func loadValidConfig() (*config.Config, string, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, path, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, path, errors.Join(errs...)
	}
	return cfg, path, nil
}

func newLogger(cfg config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

func newStore(cfg *config.Config) (*storage.Store, error) {
	return storage.New(cfg.Storage.Root, cfg.Storage.Directories, cleanup.NewLeases(),
		storage.WithMaxBytes(cfg.Server.MaxUploadBytes()))
}

// newSweeper builds a sweeper over every storage directory. rec may be nil.
func newSweeper(cfg *config.Config, store *storage.Store, log *logger.Logger, rec cleanup.Recorder) (*cleanup.Sweeper, error) {
	opts := []cleanup.Option{
		cleanup.WithLogger(log.Component("sweeper")),
		cleanup.WithLeases(store.Leases()),
		cleanup.WithRetry(retry.Fixed(cfg.Retention.DeleteAttempts, cfg.Retention.DeleteBackoff())),
	}
	if rec != nil {
		opts = append(opts, cleanup.WithRecorder(rec))
	}

	return cleanup.New(cleanup.Config{
		Dirs:      store.WatchedDirs(),
		Retention: cfg.Retention.Retention(),
		Ignore:    cfg.Retention.Ignore,
	}, opts...)
}

// startSweeper starts the background loop on the configured schedule or interval.
func startSweeper(sw *cleanup.Sweeper, cfg config.RetentionConfig) error {
	if cfg.Schedule != "" {
		sched, err := cleanup.ParseSchedule(cfg.Schedule)
		if err != nil {
			return err
		}
		return sw.StartSchedule(sched)
	}
	return sw.Start(cfg.Interval())
}

// formatBytes renders n with a binary unit, "1.5 MiB".
func formatBytes(n int64) string {
	return humanize.IBytes(uint64(max(n, 0)))
}
