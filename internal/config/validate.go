package config

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
	"github.com/wasilibs/go-re2"
)

// Validate проверяет валидность конфигурации и возвращает все найденные ошибки
func (c *Config) Validate() []error {
	var errors []error

	// Проверка server
	if c.Server.Addr == "" {
		errors = append(errors, fmt.Errorf("server.addr is required"))
	}
	if c.Server.MaxUploadMB < 1 || c.Server.MaxUploadMB > 1024 {
		errors = append(errors, fmt.Errorf("server.max_upload_mb must be between 1 and 1024 (got %d)", c.Server.MaxUploadMB))
	}
	if c.Server.MaxImageMegapixels < 1 || c.Server.MaxImageMegapixels > 1000 {
		errors = append(errors, fmt.Errorf("server.max_image_megapixels must be between 1 and 1000 (got %d)", c.Server.MaxImageMegapixels))
	}
	if c.Server.AdminToken != "" && len(c.Server.AdminToken) < 12 {
		errors = append(errors, formatValidationError("server.admin_token", "is too short (minimum 12 characters)", c.Server.AdminToken))
	}
	if c.Server.ShutdownTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("server.shutdown_timeout_seconds cannot be negative"))
	}

	// Проверка storage
	if err := validatePath(c.Storage.Root, "storage.root"); err != nil {
		errors = append(errors, err)
	}
	if len(c.Storage.Directories) == 0 {
		errors = append(errors, fmt.Errorf("storage.directories cannot be empty"))
	}
	seen := make(map[string]bool, len(c.Storage.Directories))
	for _, dir := range c.Storage.Directories {
		switch {
		case dir == "" || dir == "." || dir == "..":
			errors = append(errors, fmt.Errorf("storage.directories contains invalid name %q", dir))
		case strings.ContainsAny(dir, `/\`):
			errors = append(errors, fmt.Errorf("storage.directories entry %q must be a plain name", dir))
		case seen[dir]:
			errors = append(errors, fmt.Errorf("storage.directories contains duplicate %q", dir))
		}
		seen[dir] = true
	}

	// Проверка retention
	if c.Retention.RetentionMinutes <= 0 {
		errors = append(errors, fmt.Errorf("retention.retention_minutes must be greater than 0 (got %d)", c.Retention.RetentionMinutes))
	}
	if c.Retention.Schedule != "" {
		if _, err := cleanup.ParseSchedule(c.Retention.Schedule); err != nil {
			errors = append(errors, fmt.Errorf("retention.schedule: %w", err))
		}
	} else if c.Retention.Enabled && c.Retention.IntervalSeconds <= 0 {
		errors = append(errors, fmt.Errorf("retention.interval_seconds must be greater than 0 when retention is enabled"))
	}
	for _, p := range c.Retention.Ignore {
		if _, err := re2.Compile(p); err != nil {
			errors = append(errors, fmt.Errorf("retention.ignore pattern %q is invalid: %w", p, err))
		}
	}
	if c.Retention.DeleteAttempts < 1 || c.Retention.DeleteAttempts > 10 {
		errors = append(errors, fmt.Errorf("retention.delete_attempts must be between 1 and 10 (got %d)", c.Retention.DeleteAttempts))
	}
	if c.Retention.DeleteBackoffMS < 0 {
		errors = append(errors, fmt.Errorf("retention.delete_backoff_ms cannot be negative"))
	}

	// Проверка logging config
	if c.Logging.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}

	if c.Logging.Format == "" {
		errors = append(errors, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}

	if c.Logging.Output == "" {
		errors = append(errors, fmt.Errorf("logging.output is required"))
	}

	// Проверка metrics
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errors = append(errors, fmt.Errorf("metrics.namespace is required when metrics are enabled"))
	}

	return errors
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	if strings.HasPrefix(path, "~") {
		return nil
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
	}

	return nil
}
