package cli

import (
	"fmt"
	"strings"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/llm"
	"github.com/soyeahso/leadreach/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show LeadReach status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("LeadReach %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Gateway: port=%d bind=%s auth=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)

			dsn := cfg.Store.DSN
			if dsn == "" {
				dsn = paths.StorePath(cfg.Store.Driver)
			}
			fmt.Printf("Store:   driver=%s path=%s\n", cfg.Store.Driver, dsn)

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			fmt.Printf("LLM:     provider=%s model=%s\n", strings.Join(registry.List(), ","), cfg.LLM.Model)
			if len(cfg.LLM.Fallbacks) > 0 {
				fmt.Printf("         fallbacks=%s\n", strings.Join(cfg.LLM.Fallbacks, ","))
			}

			fmt.Printf("Agent:   sender=%q company=%q maxToolRounds=%d\n",
				cfg.Agent.SenderName, cfg.Agent.SenderCompany, cfg.Agent.MaxToolRounds)
			fmt.Printf("Review:  provider=%s\n", cfg.Review.Provider)
			if irc := cfg.Review.IRC; irc != nil {
				fmt.Printf("IRC:     server=%s nick=%s channel=%s tls=%v\n",
					irc.Server, irc.Nick, irc.Channel, irc.UseTLS)
			}
			fmt.Printf("Mailer:  mode=%s\n", cfg.Mailer.Mode)
			if cfg.Retention.Enabled {
				fmt.Printf("Purge:   cron=%q maxAgeDays=%d\n", cfg.Retention.Cron, cfg.Retention.MaxAgeDays)
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}
}
