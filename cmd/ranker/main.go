package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "ranker",
	Short:         "Locate a product's search position for a batch of keywords",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json (default picks by terminal)")
	rootCmd.PersistentFlags().String("db", "", "SQLite run history path (empty disables history)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("ranker failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// loadConfig layers defaults, the YAML file, the environment and changed
// flags, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := *config.DefaultConfig()
	flags := cmd.Flags()

	if path, _ := flags.GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, err
	}

	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		v, _ := flags.GetString("log-format")
		cfg.LogFormat = strings.ToLower(v)
	}
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	return cfg, nil
}

func setupLogging(cfg config.Config) {
	logger, level := newLogger(cfg)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
}

func newLogger(cfg config.Config) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	level.Set(slog.LevelInfo)
	if cfg.LogLevel != "" {
		var parsed slog.Level
		name := strings.Replace(strings.ToLower(cfg.LogLevel), "warning", "warn", 1)
		if err := parsed.UnmarshalText([]byte(name)); err == nil {
			level.Set(parsed)
		} else {
			fmt.Fprintf(os.Stderr, "unknown log level %q, using info\n", cfg.LogLevel)
		}
	}
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch {
	case cfg.LogFormat == "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case cfg.LogFormat == "text", cfg.LogFormat == "" && isTerminal(os.Stderr):
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
