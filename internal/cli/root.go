package cli

import (
	"io"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths   config.Paths
	log     *logging.Logger
	logFile io.Closer
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadreach",
		Short: "LeadReach: sales outreach agent with human review",
		Long: "LeadReach researches an inbound lead's company website, drafts a personalized " +
			"outreach email and holds it for human review before anything is sent.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			config.LoadDotEnv(paths.Env, ".env")
			log = newLogger(config.LoggingConfig{})
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.leadreach/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLeadCmd())
	cmd.AddCommand(newReviewCmd())
	cmd.AddCommand(newThreadsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMailerCmd())

	return cmd
}

// newLogger builds the root logger. The --log-level flag wins over the
// configured level.
func newLogger(cfg config.LoggingConfig) *logging.Logger {
	level := logLevel
	if level == "" {
		level = cfg.Level
	}
	if level == "" {
		level = "info"
	}
	return logging.NewStyled(cfg.ConsoleStyle, level)
}

// setupLogging replaces the root logger with one built from the config,
// optionally teeing to the logs directory.
func setupLogging(cfg config.LoggingConfig) error {
	if !cfg.File {
		log = newLogger(cfg)
		return nil
	}
	level := logLevel
	if level == "" {
		level = cfg.Level
	}
	l, f, err := logging.NewWithFile(paths.Logs, cfg.ConsoleStyle, level)
	if err != nil {
		return err
	}
	if logFile != nil {
		logFile.Close()
	}
	log, logFile = l, f
	return nil
}

// Execute runs the root command.
func Execute() error {
	defer func() {
		if logFile != nil {
			logFile.Close()
		}
	}()
	return newRootCmd().Execute()
}
