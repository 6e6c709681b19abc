package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/redcapp/redcapp/internal/cli/ui"
	"github.com/redcapp/redcapp/internal/metadata"
)

type castOptions struct {
	snapshot string
	records  string
	fields   []string
	output   string
	strict   bool
}

func newCastCommand(root *rootOptions) *cobra.Command {
	opts := &castOptions{}

	cmd := &cobra.Command{
		Use:   "cast",
		Short: "Cast exported records to typed values",
		Long: `Cast flat records to typed values using each field's validation type.

Records are read from --records (a JSON array of objects) or exported from
the API. Fields that fail to cast are reported on stderr and left out of
the output; --strict turns any failure into a non-zero exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCast(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Snapshot file (default: fetch from the API)")
	cmd.Flags().StringVar(&opts.records, "records", "", "Records file (default: export from the API)")
	cmd.Flags().StringSliceVar(&opts.fields, "fields", nil, "Fields to export from the API")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "Output file (- for stdout)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail when any field does not cast")

	return cmd
}

func runCast(cmd *cobra.Command, root *rootOptions, opts *castOptions) error {
	env, err := root.setup(cmd)
	if err != nil {
		return err
	}
	defer env.logger.Sync()

	ctx := cmd.Context()
	idx, err := env.index(ctx, opts.snapshot)
	if err != nil {
		return err
	}

	records, err := env.records(ctx, opts)
	if err != nil {
		return err
	}

	idField := ""
	if rows := idx.Rows(); len(rows) > 0 {
		idField = rows[0].FieldName
	}

	typed := make([]metadata.TypedRecord, 0, len(records))
	failed := 0
	for n, rec := range records {
		out, err := idx.CastRecord(rec)
		if err != nil {
			var errs metadata.CastErrors
			if !errors.As(err, &errs) {
				return err
			}
			failed++
			id, ok := rec[idField]
			if !ok {
				id = "#" + strconv.Itoa(n+1)
			}
			ui.FieldErrors(cmd.ErrOrStderr(), id, errs, color.NoColor)
		}
		typed = append(typed, out)
	}

	w, closeOutput, err := openOutput(cmd, opts.output)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(typed); err != nil {
		closeOutput()
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := closeOutput(); err != nil {
		return err
	}

	if failed > 0 {
		warningColor := color.New(color.FgYellow)
		warningColor.Fprintf(cmd.ErrOrStderr(), "%d of %d record(s) had fields that did not cast\n", failed, len(records))
		if opts.strict {
			return fmt.Errorf("%d record(s) failed to cast", failed)
		}
	}
	return nil
}

// records reads the records file, or exports records from the API
func (e *commandEnv) records(ctx context.Context, opts *castOptions) ([]metadata.Record, error) {
	if opts.records == "" {
		client, err := e.client()
		if err != nil {
			return nil, err
		}
		return client.Records(ctx, opts.fields...)
	}

	data, err := os.ReadFile(opts.records)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	var records []metadata.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records %s: %w", opts.records, err)
	}
	return records, nil
}
