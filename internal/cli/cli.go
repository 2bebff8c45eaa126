package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tapedeck/tapedeck/internal/config"
	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/encoder"
	tdfs "github.com/tapedeck/tapedeck/internal/fs"
	"github.com/tapedeck/tapedeck/internal/output"
)

const Version = "0.3.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.ConfigManager
	fs               afero.Fs
	decoders         *decoder.Registry
	encoders         *encoder.Registry
	sinks            *output.Registry
	terminalDetector TerminalDetector
}

// NewCLI creates a new CLI instance over the real filesystem
func NewCLI() *CLI {
	return NewCLIWithFs(tdfs.NewDefaultFactory().Production())
}

// NewCLIWithFs creates a CLI over the given filesystem (tests pass a
// MemMapFs)
func NewCLIWithFs(fsys afero.Fs) *CLI {
	slog.Debug("creating new CLI instance")

	rootCmd := &cobra.Command{
		Use:           "tapedeck",
		Short:         "Streaming audio recorder and player",
		Long:          "Tapedeck decodes audio files through a buffered pipeline and plays them on a device or re-encodes them to disk, keeping a catalog of everything it touches.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("database", "", "Catalog database path")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	encoders := encoder.NewDefaultRegistry()
	c := &CLI{
		rootCmd:       rootCmd,
		configManager: config.NewConfigManager(),
		fs:            fsys,
		decoders:      decoder.NewDefaultRegistry(),
		encoders:      encoders,
		sinks:         output.NewDefaultRegistry(fsys, encoders),
	}

	rootCmd.AddCommand(newPlayCommand(c))
	rootCmd.AddCommand(newRecordCommand(c))
	rootCmd.AddCommand(newScanCommand(c))
	rootCmd.AddCommand(newStatsCommand(c))

	return c
}

// Run executes the CLI with the given arguments and I/O streams
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		fmt.Fprintf(stdout, "tapedeck version %s\n", Version)
		return 0
	}

	c.rootCmd.SetArgs(args[1:]) // Skip program name
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)

	if err := c.rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		slog.Error("command failed", "error", err)
		return 1
	}
	return 0
}

// loadConfig loads configuration honoring the --config flag, environment
// overrides, and the --log-level flag, then configures logging
func (c *CLI) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	logLevelFlag, _ := cmd.Flags().GetString("log-level")

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = c.configManager.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = c.configManager.LoadConfig()
		if err != nil {
			return nil, err
		}
	}

	cfg = c.configManager.ApplyEnvironmentOverrides(cfg)

	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if dbFlag, _ := cmd.Flags().GetString("database"); dbFlag != "" {
		cfg.DatabasePath = dbFlag
	}

	if err := c.configManager.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if err := c.setupLogging(cfg, cmd.ErrOrStderr()); err != nil {
		slog.Warn("failed to configure logging, continuing with defaults", "error", err)
	}

	return cfg, nil
}

// setupLogging routes logs to stderr at the configured level and, when
// file logging is enabled, everything down to debug into a rotated file
func (c *CLI) setupLogging(cfg *config.Config, stderr io.Writer) error {
	level := slog.LevelWarn
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
	}

	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		logFilePath := c.configManager.ResolveLogFilePath(cfg.FileLogging.Filename)

		if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
			slog.Warn("failed to create log directory, file logging disabled",
				"path", logFilePath, "error", err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			handlers = append(handlers,
				slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
			slog.Debug("file logging enabled", "path", logFilePath)
		}
	}

	slog.SetDefault(slog.New(NewMultiLevelHandler(handlers...)))
	return nil
}
