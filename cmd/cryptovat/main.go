package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/cryptovat/internal/config"
)

const (
	appName           = "cryptovat"
	version           = "v1.0.0"
	defaultConfigPath = "config/cryptovat.yaml"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	// Loaded eagerly so flag defaults reflect the file; errors surface in PersistentPreRunE
	a.configPath = configPathFromArgs(os.Args[1:])
	cfg, loadErr := config.Load(optionalPath(a.configPath))
	if loadErr != nil {
		cfg = config.Default()
	}
	a.cfg = cfg

	root := &cobra.Command{
		Use:     appName,
		Short:   "Volume-to-market-cap scanner across spot and futures markets",
		Version: version,
		Long: `cryptovat aggregates spot listings from several providers, keeps tokens
whose 24h volume is large relative to their market cap, and matches them
against a futures report.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(a.logLevel); err != nil {
				return err
			}
			if loadErr != nil {
				return loadErr
			}
			return a.cfg.Validate()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", a.configPath, "Path to the YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug|info|warn|error)")

	root.AddCommand(
		spotCmd(a),
		analyzeCmd(a),
		deepDiveCmd(a),
		monitorCmd(a),
	)
	return root
}

// setupLogging writes human-readable lines to a terminal and JSON otherwise.
func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

// configPathFromArgs finds --config before cobra parses flags.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return defaultConfigPath
}

// optionalPath drops the default path when the file does not exist.
func optionalPath(path string) string {
	if path != defaultConfigPath {
		return path
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
