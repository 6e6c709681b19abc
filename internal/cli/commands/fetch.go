package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redcapp/redcapp/internal/metadata"
)

func newFetchCommand(root *rootOptions) *cobra.Command {
	var (
		output  string
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the project's metadata snapshot",
		Long: `Fetch the data dictionary and export field names from the API and
write them as a snapshot file. Snapshots are cached according to the cache
section of the configuration; --refresh bypasses the cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := root.setup(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			ctx := cmd.Context()
			client, err := env.client()
			if err != nil {
				return err
			}
			src, release, err := env.source(ctx, client)
			if err != nil {
				return err
			}
			defer release()

			var snap *metadata.Snapshot
			if refresh {
				snap, err = src.Refresh(ctx)
			} else {
				snap, err = src.Snapshot(ctx)
			}
			if err != nil {
				return err
			}

			idx, err := snap.Index(metadata.WithLogger(env.logger))
			if err != nil {
				return fmt.Errorf("fetched snapshot is invalid: %w", err)
			}
			exports := len(idx.ExportNames())
			env.logger.Debug("snapshot fetched",
				zap.Int("fields", idx.Len()),
				zap.Int("export_names", exports))

			w, closeOutput, err := openOutput(cmd, output)
			if err != nil {
				return err
			}
			if err := snap.Encode(w); err != nil {
				closeOutput()
				return err
			}
			if err := closeOutput(); err != nil {
				return err
			}

			if output != "" && output != "-" {
				successColor := color.New(color.FgGreen, color.Bold)
				successColor.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %d field(s), %d export name(s) to %s\n",
					idx.Len(), exports, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "Snapshot file (- for stdout)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the snapshot cache")

	return cmd
}
