// Command reelbar keeps a draggable progress bar on the active video of a feed page.
package main

import (
	"fmt"
	"os"
	"time"

	"reelbar/internal/config"
	"reelbar/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration
	auditPath  string

	// Logger
	logger *zap.Logger

	// cfg is loaded once per invocation in PersistentPreRunE.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reelbar",
	Short: "Progress bar overlay for short-video feeds",
	Long: `reelbar attaches to a Chromium page over the DevTools protocol and keeps a
draggable progress bar on the video of whichever feed item is active.

YouTube Shorts is built in; more page kinds can be described in the adapters file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := initLogging(cfg); err != nil {
			return err
		}
		logger.Debug("Config loaded",
			zap.String("path", configPath),
			zap.Bool("category_logging", logging.IsDebugMode()))
		logging.Boot("%s: config %s", cmd.Name(), configPath)
		if auditPath == "" {
			auditPath = cfg.Logging.AuditFile
		}
		return logging.InitAudit(auditPath)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Sync()
		logging.CloseAudit()
	},
}

// initLogging applies the logging section. --verbose turns category logging on and,
// unless a log file is configured, sends it through the command's own zap logger.
func initLogging(c *config.Config) error {
	opts := c.Logging.Options()
	if verbose {
		opts.DebugMode = true
		opts.Level = "debug"
		if opts.File == "" && logger != nil {
			logging.UseLogger(logger, opts)
			return nil
		}
	}
	return logging.Initialize(opts)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Browser startup timeout")
	rootCmd.PersistentFlags().StringVar(&auditPath, "audit", "", "Append decoration lifecycle events to this JSON-lines file")

	rootCmd.AddCommand(watchCmd, launchCmd, replayCmd, adaptersCmd, sessionsCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
