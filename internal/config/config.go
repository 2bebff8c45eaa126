package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tapedeck/tapedeck/internal/buffer"
)

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// Config represents tapedeck configuration
type Config struct {
	Sink         string             `json:"sink"`                   // Output sink (recorder, device, null)
	Encoder      string             `json:"encoder"`                // Recorder encoder (wav, pcm)
	BufferChunks int                `json:"buffer_chunks"`          // Decoded-audio ring capacity in chunks
	MusicDir     string             `json:"music_dir"`              // Library root scanned into the catalog
	DatabasePath string             `json:"database_path"`          // Catalog database path (empty = XDG data path)
	LogLevel     string             `json:"log_level"`              // Log level (debug, info, warn, error)
	FileLogging  *FileLoggingConfig `json:"file_logging,omitempty"` // File logging configuration
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	GetDataPath(purpose string) string
	CreateCacheDir(purpose string) error
	CreateDataDir(purpose string) error
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	xdg XDGInterface
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{
		xdg: NewXDGDirs(),
	}
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		Sink:         "device",
		Encoder:      "wav",
		BufferChunks: buffer.DefaultChunks,
		MusicDir:     "",
		DatabasePath: "",
		LogLevel:     "warn",
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}

	slog.Debug("generated default config",
		"sink", defaultConfig.Sink,
		"encoder", defaultConfig.Encoder,
		"buffer_chunks", defaultConfig.BufferChunks,
		"log_level", defaultConfig.LogLevel)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cm.ValidateConfig(&config); err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"sink", config.Sink,
		"encoder", config.Encoder)

	return &config, nil
}

// SaveToFile saves configuration to a specific file
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	if err := cm.ValidateConfig(config); err != nil {
		slog.Error("cannot save invalid config", "error", err)
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		slog.Error("failed to marshal config", "error", err)
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration using XDG path discovery
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	slog.Debug("loading config using XDG path discovery")

	configPaths := cm.xdg.GetConfigPaths("config.json")

	for i, configPath := range configPaths {
		slog.Debug("checking config path", "path_index", i, "path", configPath)

		if _, err := os.Stat(configPath); err == nil {
			slog.Debug("found config file", "path", configPath)
			return cm.LoadFromFile(configPath)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// GetSupportedSinks returns all supported output sink identifiers
func (cm *ConfigManager) GetSupportedSinks() []string {
	return []string{"recorder", "device", "null"}
}

// GetSupportedEncoders returns all supported encoder identifiers
func (cm *ConfigManager) GetSupportedEncoders() []string {
	return []string{"wav", "pcm"}
}

// IsValidSink checks if a sink identifier is supported. Empty means the
// default and is valid.
func (cm *ConfigManager) IsValidSink(sink string) bool {
	if sink == "" {
		return true
	}
	for _, supported := range cm.GetSupportedSinks() {
		if sink == supported {
			return true
		}
	}
	return false
}

// IsValidEncoder checks if an encoder identifier is supported. Empty
// means the default and is valid.
func (cm *ConfigManager) IsValidEncoder(encoder string) bool {
	if encoder == "" {
		return true
	}
	for _, supported := range cm.GetSupportedEncoders() {
		if encoder == supported {
			return true
		}
	}
	return false
}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errors []string

	if !cm.IsValidSink(config.Sink) {
		errors = append(errors, fmt.Sprintf("invalid sink '%s', must be one of: %s",
			config.Sink, strings.Join(cm.GetSupportedSinks(), ", ")))
	}

	if !cm.IsValidEncoder(config.Encoder) {
		errors = append(errors, fmt.Sprintf("invalid encoder '%s', must be one of: %s",
			config.Encoder, strings.Join(cm.GetSupportedEncoders(), ", ")))
	}

	if config.BufferChunks < 0 {
		errors = append(errors, fmt.Sprintf("buffer_chunks must be >= 0, got %d", config.BufferChunks))
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if config.LogLevel != "" {
		valid := false
		for _, level := range validLogLevels {
			if config.LogLevel == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("invalid log level '%s', must be one of: %s",
				config.LogLevel, strings.Join(validLogLevels, ", ")))
		}
	}

	if config.FileLogging != nil {
		fileLogging := config.FileLogging

		if fileLogging.MaxSizeMB < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}
		if fileLogging.MaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}
		if fileLogging.MaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if len(errors) > 0 {
		errMsg := strings.Join(errors, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	slog.Debug("config validation passed")
	return nil
}

// ApplyEnvironmentOverrides applies environment variable overrides to config
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	slog.Debug("applying environment variable overrides")

	result := *config

	// TAPEDECK_SINK
	if sink := os.Getenv("TAPEDECK_SINK"); sink != "" {
		if cm.IsValidSink(sink) {
			result.Sink = sink
			slog.Debug("applied sink override from environment", "value", sink)
		} else {
			slog.Warn("invalid TAPEDECK_SINK environment variable", "value", sink)
		}
	}

	// TAPEDECK_ENCODER
	if enc := os.Getenv("TAPEDECK_ENCODER"); enc != "" {
		if cm.IsValidEncoder(enc) {
			result.Encoder = enc
			slog.Debug("applied encoder override from environment", "value", enc)
		} else {
			slog.Warn("invalid TAPEDECK_ENCODER environment variable", "value", enc)
		}
	}

	// TAPEDECK_BUFFER_CHUNKS
	if chunksStr := os.Getenv("TAPEDECK_BUFFER_CHUNKS"); chunksStr != "" {
		if chunks, err := strconv.Atoi(chunksStr); err == nil && chunks >= 0 {
			result.BufferChunks = chunks
			slog.Debug("applied buffer chunks override from environment", "value", chunks)
		} else {
			slog.Warn("invalid TAPEDECK_BUFFER_CHUNKS environment variable", "value", chunksStr)
		}
	}

	// TAPEDECK_MUSIC_DIR
	if dir := os.Getenv("TAPEDECK_MUSIC_DIR"); dir != "" {
		result.MusicDir = dir
		slog.Debug("applied music dir override from environment", "value", dir)
	}

	// TAPEDECK_LOG_LEVEL
	if logLevel := os.Getenv("TAPEDECK_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	slog.Debug("environment overrides applied")
	return &result
}

// parseLogLevel maps a level name to its slog.Level
func parseLogLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", logLevel)
	}
}

// ApplyLogLevel configures slog with the specified log level
func (cm *ConfigManager) ApplyLogLevel(logLevel string) error {
	return cm.ApplyLogLevelWithWriter(logLevel, os.Stderr)
}

// ApplyLogLevelWithWriter configures slog with the specified log level
// and custom writer (for testing)
func (cm *ConfigManager) ApplyLogLevelWithWriter(logLevel string, writer io.Writer) error {
	if logLevel == "" {
		slog.Debug("no log level specified, keeping current slog configuration")
		return nil
	}

	level, err := parseLogLevel(logLevel)
	if err != nil {
		slog.Error("invalid log level for slog configuration", "log_level", logLevel, "error", err)
		return err
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Debug("slog configured successfully", "log_level", logLevel, "slog_level", level)
	return nil
}

// ResolveLogFilePath resolves the log file path using the XDG cache
// directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "tapedeck.log")
}

// ResolveDatabasePath resolves the catalog database path using the XDG
// data directory when path is empty
func (cm *ConfigManager) ResolveDatabasePath(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(cm.xdg.GetDataPath("catalog"), "catalog.db")
}
