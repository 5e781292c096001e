package config

import "github.com/aatumaykin/ecardcut/internal/constants"

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:                   constants.DefaultAddr,
			MaxUploadMB:            16,
			MaxImageMegapixels:     40,
			ReadTimeoutSeconds:     30,
			WriteTimeoutSeconds:    60,
			ShutdownTimeoutSeconds: 10,
		},
		Storage: StorageConfig{
			Root:        constants.DefaultStorageRoot,
			Directories: constants.DefaultDirectories(),
		},
		Retention: RetentionConfig{
			Enabled:          true,
			RetentionMinutes: 5,
			IntervalSeconds:  300,
			DeleteAttempts:   3,
			DeleteBackoffMS:  200,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: constants.MetricsNamespace,
		},
	}
}

// applyDefaults заполняет пустые строковые и списочные поля.
// Числовые настройки хранения не трогаются: явный 0 должен дойти до Validate.
func applyDefaults(c *Config) {
	d := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.MaxImageMegapixels == 0 {
		c.Server.MaxImageMegapixels = d.Server.MaxImageMegapixels
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = d.Server.ShutdownTimeoutSeconds
	}

	if c.Storage.Root == "" {
		c.Storage.Root = d.Storage.Root
	}
	if len(c.Storage.Directories) == 0 {
		c.Storage.Directories = d.Storage.Directories
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Logging.Output == "" {
		c.Logging.Output = d.Logging.Output
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
}
