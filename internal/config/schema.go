// Package config provides configuration loading and validation for ecardcut.
// It supports TOML (and YAML) configuration files with environment variable
// expansion, default values, and validation.
//
// Configuration structure:
//   - [server]: HTTP listen address, upload limit, admin token
//   - [storage]: Root directory and the working directories under it
//   - [retention]: Retention window and sweep schedule
//   - [logging]: Logging level, format, output and rotation
//   - [metrics]: Prometheus metrics
//
// Environment variables:
// Environment variables can be referenced using ${VAR} or ${VAR:default} syntax.
// For example: admin_token = "${ECARDCUT_ADMIN_TOKEN:}"
package config

import "time"

// Config represents the main application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Retention RetentionConfig `toml:"retention" yaml:"retention"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Addr                   string `toml:"addr" yaml:"addr"`
	MaxUploadMB            int    `toml:"max_upload_mb" yaml:"max_upload_mb"`
	MaxImageMegapixels     int    `toml:"max_image_megapixels" yaml:"max_image_megapixels"`
	AdminToken             string `toml:"admin_token" yaml:"admin_token"`
	ReadTimeoutSeconds     int    `toml:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `toml:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// StorageConfig представляет конфигурацию рабочих каталогов
type StorageConfig struct {
	Root        string   `toml:"root" yaml:"root"`
	Directories []string `toml:"directories" yaml:"directories"`
}

// RetentionConfig представляет конфигурацию автоудаления файлов
type RetentionConfig struct {
	Enabled          bool     `toml:"enabled" yaml:"enabled"`
	RetentionMinutes int      `toml:"retention_minutes" yaml:"retention_minutes"`
	IntervalSeconds  int      `toml:"interval_seconds" yaml:"interval_seconds"`
	Schedule         string   `toml:"schedule" yaml:"schedule"` // cron expression, overrides interval_seconds
	Ignore           []string `toml:"ignore" yaml:"ignore"`
	DeleteAttempts   int      `toml:"delete_attempts" yaml:"delete_attempts"`
	DeleteBackoffMS  int      `toml:"delete_backoff_ms" yaml:"delete_backoff_ms"`
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	Output     string `toml:"output" yaml:"output"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

// MetricsConfig представляет конфигурацию Prometheus метрик
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" yaml:"enabled"`
	Namespace string `toml:"namespace" yaml:"namespace"`
}

// Retention returns the retention window.
func (r RetentionConfig) Retention() time.Duration {
	return time.Duration(r.RetentionMinutes) * time.Minute
}

// Interval returns the pause between scheduled sweeps.
func (r RetentionConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// DeleteBackoff returns the delay between delete attempts.
func (r RetentionConfig) DeleteBackoff() time.Duration {
	return time.Duration(r.DeleteBackoffMS) * time.Millisecond
}

// MaxUploadBytes returns the upload size limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

// MaxImagePixels returns the decoded image size limit in pixels.
func (s ServerConfig) MaxImagePixels() int {
	return s.MaxImageMegapixels * 1_000_000
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}
