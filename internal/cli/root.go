package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/checkpoint"
	"github.com/roach88/chronicle/internal/conflict"
	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/lifecycle"
	"github.com/roach88/chronicle/internal/store/sqlite"
	"github.com/roach88/chronicle/internal/workflow"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // path to the SQLite database

	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chronicle CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chronicle",
		Short: "Chronicle - audit-trailed entity lifecycle engine",
		Long: `Chronicle stores schema-less entities with a transactional repository,
pairs every state change with an append-only audit transition, and gates
outbound side effects behind explicit user approval.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "chronicle.db", "path to SQLite database")

	// Add subcommands
	cmd.AddCommand(NewEventCommand(opts))
	cmd.AddCommand(NewDraftCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewCheckpointCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// services bundles the store and the service layer for one command run.
type services struct {
	repo        *sqlite.Store
	lifecycles  *lifecycle.Service
	workflows   *workflow.Service
	checkpoints *checkpoint.Service
	detector    *conflict.Detector
}

// openServices opens the database and wires the service layer. Outbound
// actions run through the loopback port: there is no external executor in
// the CLI, so approvals are acknowledged locally with a generated receipt.
func openServices(opts *RootOptions) (*services, error) {
	repo, err := sqlite.Open(opts.Database, lifecycle.ReferenceRules()...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	ids := domain.UUIDv7Generator{}
	rec := audit.NewRecorder(time.Now, ids)

	return &services{
		repo:        repo,
		lifecycles:  lifecycle.New(repo, rec, ids),
		workflows:   workflow.New(repo, rec, loopbackPort{ids: ids}, ids),
		checkpoints: checkpoint.New(repo, rec, ids),
		detector:    conflict.New(repo),
	}, nil
}

func (s *services) Close() error {
	return s.repo.Close()
}

// formatter builds the output formatter for a command invocation.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}

// actorFromFlags builds the acting identity from the per-command flags.
func actorFromFlags(id, kind string) (domain.Actor, error) {
	actor := domain.Actor{ID: id, Kind: domain.ActorKind(kind)}
	if actor.ID == "" {
		return domain.Actor{}, fmt.Errorf("--actor must not be empty")
	}
	if !actor.Kind.Valid() {
		return domain.Actor{}, fmt.Errorf("invalid actor kind %q: must be user, system, or ai", kind)
	}
	return actor, nil
}
