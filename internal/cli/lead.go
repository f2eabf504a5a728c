package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/leadreach/internal/agent"
	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/spf13/cobra"
)

func newLeadCmd() *cobra.Command {
	var threadID string

	cmd := &cobra.Command{
		Use:   "lead <email>",
		Short: "Run the outreach workflow for a new lead until it needs review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.Start(ctx, threadID, args[0])
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "thread id (generated when empty)")
	return cmd
}

func newReviewCmd() *cobra.Command {
	var (
		decision string
		text     string
		comment  string
	)

	cmd := &cobra.Command{
		Use:   "review <thread-id>",
		Short: "Answer a suspended thread's review request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := domain.Decision(strings.ToLower(strings.TrimSpace(decision)))
			switch d {
			case domain.DecisionApprove, domain.DecisionRetry, domain.DecisionReject:
			default:
				return fmt.Errorf("--decision must be approve, retry or reject, got %q", decision)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.Resume(ctx, args[0], domain.ReviewResponse{
				Decision:    d,
				RevisedText: text,
				Comment:     comment,
			})
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&decision, "decision", "", "approve, retry or reject")
	cmd.Flags().StringVar(&text, "text", "", "revised email text (approve; defaults to the pending draft)")
	cmd.Flags().StringVar(&comment, "comment", "", "feedback for the agent (retry)")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func printResult(res *agent.Result) {
	fmt.Printf("Thread:  %s\n", res.ThreadID)
	fmt.Printf("Status:  %s\n", res.Status)
	if res.Domain != "" {
		fmt.Printf("Domain:  %s\n", res.Domain)
	}
	if res.Suspended() {
		fmt.Printf("Review:  %s\n", res.ReviewLink)
		if res.Conversation != nil && res.Conversation.PendingReview != nil {
			fmt.Printf("\n%s\n", res.Conversation.PendingReview.Draft)
		}
		return
	}
	if res.Answer != "" {
		fmt.Printf("\n%s\n", res.Answer)
	}
}
