package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/checkpoint"
	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
)

// CheckpointOptions holds flags shared by the checkpoint subcommands.
type CheckpointOptions struct {
	*RootOptions
	ActorID   string
	ActorKind string
}

// NewCheckpointCommand creates the checkpoint command group.
func NewCheckpointCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckpointOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Create, keep, and recover checkpoints",
		Long: `Manage checkpoints.

A checkpoint records which entity refs and which audit position define
a point in time. Recovery transitions the checkpoint and reports the
refs in scope; it does not rewrite entity bodies.

Examples:
  chronicle checkpoint create --name before-sync --ref event/<id>
  chronicle checkpoint keep <checkpoint-id>
  chronicle checkpoint recover <checkpoint-id>`,
	}

	cmd.PersistentFlags().StringVar(&opts.ActorID, "actor", "operator", "acting identity")
	cmd.PersistentFlags().StringVar(&opts.ActorKind, "actor-kind", "user", "actor kind (user|system|ai)")

	cmd.AddCommand(newCheckpointCreateCommand(opts))
	cmd.AddCommand(newCheckpointKeepCommand(opts))
	cmd.AddCommand(newCheckpointRecoverCommand(opts))

	return cmd
}

// parseRefFlag parses "entityType/entityId" ref flags.
func parseRefFlag(values []string) ([]domain.Ref, error) {
	refs := make([]domain.Ref, 0, len(values))
	for _, v := range values {
		parts := strings.SplitN(v, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid ref %q: expected entityType/entityId", v)
		}
		refs = append(refs, domain.Ref{Type: parts[0], ID: parts[1]})
	}
	return refs, nil
}

func newCheckpointCreateCommand(opts *CheckpointOptions) *cobra.Command {
	var name, rollbackTarget string
	var refValues []string

	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Create a checkpoint over the given entity refs",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags(opts.ActorID, opts.ActorKind)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid actor", err)
			}
			refs, err := parseRefFlag(refValues)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --ref", err)
			}
			svc, err := openServices(opts.RootOptions)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := formatter(opts.RootOptions, cmd)
			ctx := context.Background()

			// Capture the cursor and the checkpoint write in one transaction
			// so the "as of" moment is consistent.
			var cp domain.Checkpoint
			err = svc.repo.WithTransaction(ctx, func(ctx context.Context) error {
				trail, err := svc.repo.ListTransitions(ctx, store.TransitionFilter{})
				if err != nil {
					return err
				}
				cp, err = svc.checkpoints.Create(ctx, checkpoint.CreateParams{
					Name:           name,
					SnapshotRefs:   refs,
					AuditCursor:    int64(len(trail)),
					RollbackTarget: rollbackTarget,
					Actor:          actor,
					At:             time.Now(),
				})
				return err
			})
			if err != nil {
				return out.OperationError("failed to create checkpoint", err)
			}
			if opts.Format == "json" {
				return out.Success(cp)
			}
			return out.Success(fmt.Sprintf("created checkpoint %s (%s) at audit cursor %d", cp.ID, cp.Name, cp.AuditCursor))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "checkpoint name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringArrayVar(&refValues, "ref", nil, "entity ref as entityType/entityId (repeatable)")
	cmd.Flags().StringVar(&rollbackTarget, "rollback-target", "", "opaque rollback label (defaults to a content hash)")

	return cmd
}

func newCheckpointKeepCommand(opts *CheckpointOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "keep <checkpoint-id>",
		Short:         "Mark a checkpoint as kept",
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
			cp, err := svc.checkpoints.Keep(context.Background(), args[0], actor, time.Now())
			if err != nil {
				return out.OperationError("failed to keep checkpoint", err)
			}
			if opts.Format == "json" {
				return out.Success(cp)
			}
			return out.Success(fmt.Sprintf("checkpoint %s is %s", cp.ID, cp.Status))
		},
	}
}

func newCheckpointRecoverCommand(opts *CheckpointOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "recover <checkpoint-id>",
		Short:         "Recover a checkpoint and list the refs in scope",
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
			result, err := svc.checkpoints.Recover(context.Background(), args[0], actor, time.Now())
			if err != nil {
				return out.OperationError("failed to recover checkpoint", err)
			}
			if opts.Format == "json" {
				return out.Success(result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s is %s (rollback target %s)\n",
				result.Checkpoint.ID, result.Checkpoint.Status, result.Checkpoint.RollbackTarget)
			for _, ref := range result.Refs {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s/%s\n", ref.Type, ref.ID)
			}
			return nil
		},
	}
}
