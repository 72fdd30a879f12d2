package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	EntityType string
	EntityID   string
	Limit      int
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List the audit trail, most recent first",
		Long: `List audit transitions.

The store keeps the trail in insertion order; this command presents it
most recent first, optionally filtered to one entity.

Examples:
  chronicle audit
  chronicle audit --entity-type event --entity-id <id>
  chronicle audit --limit 20 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "", "filter to one entity type")
	cmd.Flags().StringVar(&opts.EntityID, "entity-id", "", "filter to one entity id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most N transitions (0 = all)")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	svc, err := openServices(opts.RootOptions)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := formatter(opts.RootOptions, cmd)
	trail, err := svc.repo.ListTransitions(context.Background(), store.TransitionFilter{
		EntityType: opts.EntityType,
		EntityID:   opts.EntityID,
	})
	if err != nil {
		return out.OperationError("failed to list audit trail", err)
	}

	// Presentation order only; the stored trail stays oldest first.
	reversed := make([]domain.Transition, len(trail))
	for i, t := range trail {
		reversed[len(trail)-1-i] = t
	}
	if opts.Limit > 0 && opts.Limit < len(reversed) {
		reversed = reversed[:opts.Limit]
	}

	if opts.Format == "json" {
		return out.Success(reversed)
	}

	if len(reversed) == 0 {
		return out.Success("audit trail is empty")
	}
	for _, t := range reversed {
		meta := ""
		if len(t.Metadata) > 0 {
			meta = fmt.Sprintf(" %v", t.Metadata)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s/%s  %q -> %q  by %s/%s  %q%s\n",
			t.At.UTC().Format(time.RFC3339),
			t.EntityType, t.EntityID,
			t.FromState, t.ToState,
			t.Actor.Kind, t.Actor.ID,
			t.Reason, meta,
		)
	}
	return nil
}
