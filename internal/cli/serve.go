package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/gateway"
	"github.com/soyeahso/leadreach/internal/retention"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, func(cfg *config.Config) {
				if port != 0 {
					cfg.Gateway.Port = port
				}
				if bind != "" {
					cfg.Gateway.Bind = bind
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			stopRetention, err := retention.Start(ctx, a.cfg.Retention, a.store, log)
			if err != nil {
				return fmt.Errorf("retention: %w", err)
			}
			defer stopRetention()

			srv := gateway.New(a.cfg.Gateway, a.engine, log,
				gateway.WithStore(a.store),
				gateway.WithMetrics(a.metrics.Handler()),
				gateway.WithHooks(a.hooks),
			)

			log.Info().
				Str("store", a.cfg.Store.Driver).
				Str("llm", a.cfg.LLM.Provider).
				Str("review", a.cfg.Review.Provider).
				Str("mailer", a.cfg.Mailer.Mode).
				Strs("hooks", a.hooks.Events()).
				Msg("outreach agent ready")

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
