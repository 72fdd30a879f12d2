package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/lifecycle"
	"github.com/roach88/chronicle/internal/workflow"
)

// DraftOptions holds flags shared by the draft subcommands.
type DraftOptions struct {
	*RootOptions
	ActorID   string
	ActorKind string
}

// NewDraftCommand creates the draft command group.
func NewDraftCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DraftOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Manage outbound drafts and their execution lifecycle",
		Long: `Manage outbound drafts.

A draft moves draft -> pending_approval -> executing -> executed. The
executing stage is persisted before the outbound action runs, so a
failed execution compensates back to pending_approval with its own
audit transition.

Examples:
  chronicle draft create --subject "Quarterly update" --body "..."
  chronicle draft request <draft-id>
  chronicle draft approve <draft-id> --approved`,
	}

	cmd.PersistentFlags().StringVar(&opts.ActorID, "actor", "operator", "acting identity")
	cmd.PersistentFlags().StringVar(&opts.ActorKind, "actor-kind", "user", "actor kind (user|system|ai)")

	cmd.AddCommand(newDraftCreateCommand(opts))
	cmd.AddCommand(newDraftRequestCommand(opts))
	cmd.AddCommand(newDraftApproveCommand(opts))

	return cmd
}

func newDraftCreateCommand(opts *DraftOptions) *cobra.Command {
	var subject, body string

	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Create an outbound draft",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags(opts.ActorID, opts.ActorKind)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid actor", err)
			}
			svc, err := openServices(opts.RootOptions)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := formatter(opts.RootOptions, cmd)
			d, err := svc.lifecycles.CreateDraft(context.Background(), lifecycle.CreateDraftParams{
				Subject: subject,
				Body:    body,
				Actor:   actor,
			})
			if err != nil {
				return out.OperationError("failed to create draft", err)
			}
			if opts.Format == "json" {
				return out.Success(d)
			}
			return out.Success(fmt.Sprintf("created draft %s (%s)", d.ID, d.Status))
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "draft subject (required)")
	_ = cmd.MarkFlagRequired("subject")
	cmd.Flags().StringVar(&body, "body", "", "draft body")

	return cmd
}

func newDraftRequestCommand(opts *DraftOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "request <draft-id>",
		Short:         "Request approval to execute a draft",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags(opts.ActorID, opts.ActorKind)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid actor", err)
			}
			svc, err := openServices(opts.RootOptions)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := formatter(opts.RootOptions, cmd)
			d, err := svc.workflows.RequestDraftExecution(context.Background(), workflow.RequestDraftExecutionParams{
				DraftID: args[0],
				Actor:   actor,
			})
			if err != nil {
				return out.OperationError("failed to request execution", err)
			}
			if opts.Format == "json" {
				return out.Success(d)
			}
			return out.Success(fmt.Sprintf("draft %s is %s", d.ID, d.Status))
		},
	}
}

func newDraftApproveCommand(opts *DraftOptions) *cobra.Command {
	var approved bool

	cmd := &cobra.Command{
		Use:           "approve <draft-id>",
		Short:         "Approve a pending draft execution and run it",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags(opts.ActorID, opts.ActorKind)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid actor", err)
			}
			svc, err := openServices(opts.RootOptions)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := formatter(opts.RootOptions, cmd)
			d, err := svc.workflows.ApproveDraftExecution(context.Background(), workflow.ApproveDraftExecutionParams{
				DraftID:  args[0],
				Approved: approved,
				Actor:    actor,
			})
			if err != nil {
				return out.OperationError("failed to approve execution", err)
			}
			if opts.Format == "json" {
				return out.Success(d)
			}
			return out.Success(fmt.Sprintf("draft %s is %s (execution %s)", d.ID, d.Status, d.ExecutionID))
		},
	}

	cmd.Flags().BoolVar(&approved, "approved", false, "explicit approval (required to execute)")

	return cmd
}
