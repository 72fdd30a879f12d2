package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import the full store as a snapshot file",
		Long: `Export or import snapshots.

A snapshot file is canonical JSON holding every entity collection and
the complete audit trail, so identical store contents always produce
identical bytes.

Examples:
  chronicle snapshot export backup.json
  chronicle snapshot import backup.json --db fresh.db`,
	}

	cmd.AddCommand(newSnapshotExportCommand(rootOpts))
	cmd.AddCommand(newSnapshotImportCommand(rootOpts))

	return cmd
}

func newSnapshotExportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "export <file>",
		Short:         "Write the store contents to a snapshot file",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(opts)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := formatter(opts, cmd)
			if err := svc.repo.PersistSnapshot(context.Background(), args[0]); err != nil {
				return out.OperationError("failed to export snapshot", err)
			}
			return out.Success(fmt.Sprintf("exported snapshot to %s", args[0]))
		},
	}
}

func newSnapshotImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "import <file>",
		Short:         "Load a snapshot file into the store",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(opts)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := formatter(opts, cmd)
			if err := svc.repo.LoadSnapshot(context.Background(), args[0]); err != nil {
				return out.OperationError("failed to import snapshot", err)
			}
			return out.Success(fmt.Sprintf("imported snapshot from %s", args[0]))
		},
	}
}
