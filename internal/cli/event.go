package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/conflict"
	"github.com/roach88/chronicle/internal/lifecycle"
	"github.com/roach88/chronicle/internal/workflow"
)

// EventOptions holds flags shared by the event subcommands.
type EventOptions struct {
	*RootOptions
	ActorID   string
	ActorKind string
}

// NewEventCommand creates the event command group.
func NewEventCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "event",
		Short: "Manage calendar events and their sync lifecycle",
		Long: `Manage calendar events.

Events start local_only. Syncing them to the external system is an
outbound action: it must be requested, then explicitly approved by a
user actor before it executes.

Examples:
  chronicle event create --title "Standup" --starts-at 2024-07-01T10:00:00Z
  chronicle event request-sync <event-id>
  chronicle event approve <event-id> --approved
  chronicle event conflicts`,
	}

	cmd.PersistentFlags().StringVar(&opts.ActorID, "actor", "operator", "acting identity")
	cmd.PersistentFlags().StringVar(&opts.ActorKind, "actor-kind", "user", "actor kind (user|system|ai)")

	cmd.AddCommand(newEventCreateCommand(opts))
	cmd.AddCommand(newEventRequestSyncCommand(opts))
	cmd.AddCommand(newEventApproveCommand(opts))
	cmd.AddCommand(newEventConflictsCommand(opts))

	return cmd
}

func newEventCreateCommand(opts *EventOptions) *cobra.Command {
	var title, startsAt, endsAt string

	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Create a local event",
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
			ev, err := svc.lifecycles.CreateEvent(context.Background(), lifecycle.CreateEventParams{
				Title:    title,
				StartsAt: startsAt,
				EndsAt:   endsAt,
				Actor:    actor,
			})
			if err != nil {
				return out.OperationError("failed to create event", err)
			}
			opts.Logger.Debug("event created", "id", ev.ID, "title", ev.Title)
			if opts.Format == "json" {
				return out.Success(ev)
			}
			return out.Success(fmt.Sprintf("created event %s (%s)", ev.ID, ev.SyncState))
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "event title (required)")
	_ = cmd.MarkFlagRequired("title")
	cmd.Flags().StringVar(&startsAt, "starts-at", "", "start time, RFC 3339 (required)")
	_ = cmd.MarkFlagRequired("starts-at")
	cmd.Flags().StringVar(&endsAt, "ends-at", "", "end time, RFC 3339 (optional)")

	return cmd
}

func newEventRequestSyncCommand(opts *EventOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "request-sync <event-id>",
		Short:         "Request approval to sync an event externally",
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
			ev, err := svc.workflows.RequestEventSync(context.Background(), workflow.RequestEventSyncParams{
				EventID: args[0],
				Actor:   actor,
			})
			if err != nil {
				return out.OperationError("failed to request sync", err)
			}
			if opts.Format == "json" {
				return out.Success(ev)
			}
			return out.Success(fmt.Sprintf("event %s is %s", ev.ID, ev.SyncState))
		},
	}
}

func newEventApproveCommand(opts *EventOptions) *cobra.Command {
	var approved bool

	cmd := &cobra.Command{
		Use:   "approve <event-id>",
		Short: "Approve a pending sync and execute it",
		Long: `Approve a pending sync and execute it.

Approval requires --approved and a user actor; without either the
command fails and the outbound action is not executed.`,
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
			ev, err := svc.workflows.ApproveEventSync(context.Background(), workflow.ApproveEventSyncParams{
				EventID:  args[0],
				Approved: approved,
				Actor:    actor,
			})
			if err != nil {
				return out.OperationError("failed to approve sync", err)
			}
			if opts.Format == "json" {
				return out.Success(ev)
			}
			return out.Success(fmt.Sprintf("event %s is %s", ev.ID, ev.SyncState))
		},
	}

	cmd.Flags().BoolVar(&approved, "approved", false, "explicit approval (required to execute)")

	return cmd
}

func newEventConflictsCommand(opts *EventOptions) *cobra.Command {
	var eventID string

	cmd := &cobra.Command{
		Use:           "conflicts",
		Short:         "Detect temporally overlapping unsynced events",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(opts.RootOptions)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := formatter(opts.RootOptions, cmd)
			ctx := context.Background()

			var pairs []conflictPair
			var detectErr error
			if eventID != "" {
				raw, err := svc.detector.DetectFor(ctx, eventID)
				detectErr, pairs = err, toConflictPairs(raw)
			} else {
				raw, err := svc.detector.Detect(ctx)
				detectErr, pairs = err, toConflictPairs(raw)
			}
			if detectErr != nil {
				return out.OperationError("failed to detect conflicts", detectErr)
			}

			if opts.Format == "json" {
				return out.Success(pairs)
			}
			if len(pairs) == 0 {
				return out.Success("no conflicts")
			}
			for _, p := range pairs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%q) overlaps %s (%q)\n",
					p.FirstID, p.FirstTitle, p.SecondID, p.SecondTitle)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&eventID, "event", "", "limit to conflicts involving this event")

	return cmd
}

// conflictPair is the flattened output row for one detected overlap.
type conflictPair struct {
	FirstID     string `json:"firstId"`
	FirstTitle  string `json:"firstTitle"`
	SecondID    string `json:"secondId"`
	SecondTitle string `json:"secondTitle"`
}

func toConflictPairs(pairs []conflict.Pair) []conflictPair {
	out := make([]conflictPair, len(pairs))
	for i, p := range pairs {
		out[i] = conflictPair{
			FirstID:     p.First.ID,
			FirstTitle:  p.First.Title,
			SecondID:    p.Second.ID,
			SecondTitle: p.Second.Title,
		}
	}
	return out
}
