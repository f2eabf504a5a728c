package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/store"
	"github.com/spf13/cobra"
)

func newThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "threads",
		Aliases: []string{"thread"},
		Short:   "Inspect stored conversations",
	}

	cmd.AddCommand(newThreadsListCmd())
	cmd.AddCommand(newThreadsShowCmd())
	cmd.AddCommand(newThreadsDeleteCmd())
	return cmd
}

// withStore opens the configured checkpoint store for a single command.
func withStore(fn func(ctx context.Context, cp store.Checkpointer) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cp, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cp.Close()
	return fn(context.Background(), cp)
}

func newThreadsListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch domain.Status(status) {
			case "", domain.StatusRunning, domain.StatusSuspended, domain.StatusTerminal:
			default:
				return fmt.Errorf("--status must be running, suspended or terminal, got %q", status)
			}
			return withStore(func(ctx context.Context, cp store.Checkpointer) error {
				items, err := cp.List(ctx, store.ListOptions{Status: domain.Status(status), Limit: limit})
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Println("No conversations.")
					return nil
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "THREAD\tEMAIL\tSTATUS\tNEXT\tMSGS\tUPDATED")
				for _, s := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
						s.ThreadID, s.LeadEmail, s.Status, s.NextNode, s.Messages,
						s.UpdatedAt.Local().Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (running, suspended, terminal)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of rows")
	return cmd
}

func newThreadsShowCmd() *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Print a conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cp store.Checkpointer) error {
				conv, err := cp.Load(ctx, args[0])
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(conv, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				if !history {
					return nil
				}
				h, ok := cp.(store.Historian)
				if !ok {
					return fmt.Errorf("this store keeps no checkpoint history")
				}
				versions, err := h.History(ctx, conv.ThreadID)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "checkpoints: %v\n", versions)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "also print committed checkpoint versions")
	return cmd
}

func newThreadsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a conversation and its checkpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cp store.Checkpointer) error {
				if err := cp.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
