package commands

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/redcapp/redcapp/internal/cli/ui"
	"github.com/redcapp/redcapp/internal/metadata"
	"github.com/redcapp/redcapp/internal/schema"
)

type exportOptions struct {
	snapshot   string
	target     string
	output     string
	schemaName string
	groupBy    string
	dialect    string
	strict     bool
}

func newExportCommand(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the data dictionary",
		Long: `Export the data dictionary as a flat CSV file or as a SQL schema
migration with one table per group.

Targets:
  flat       - one CSV row per field, branching logic in platform form
  migration  - CREATE TABLE / ALTER TABLE statements grouped by --group-by

Fields with a validation type the toolkit does not know are exported as
TEXT columns and listed on stderr; --strict turns them into a non-zero exit.

Unset flags fall back to the export section of the configuration.`,
		Example: `  redcapp export --snapshot project.json --target migration --group-by form_name --dialect postgres -o schema.sql`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Snapshot file (default: fetch from the API)")
	cmd.Flags().StringVar(&opts.target, "target", "migration", "Export target: flat or migration")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "Output file (- for stdout)")
	cmd.Flags().StringVar(&opts.schemaName, "schema", "", "Schema to create tables in")
	cmd.Flags().StringVar(&opts.groupBy, "group-by", "", "Metadata column that splits fields into tables")
	cmd.Flags().StringVar(&opts.dialect, "dialect", "", "SQL dialect: generic, postgres or sqlite")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail when any field has an unknown validation type")

	return cmd
}

func runExport(cmd *cobra.Command, root *rootOptions, opts *exportOptions) error {
	target, err := schema.ParseTarget(opts.target)
	if err != nil {
		return err
	}

	env, err := root.setup(cmd)
	if err != nil {
		return err
	}
	defer env.logger.Sync()

	schemaOpts := env.cfg.SchemaOptions()
	if cmd.Flags().Changed("schema") {
		schemaOpts.SchemaName = opts.schemaName
	}
	if cmd.Flags().Changed("group-by") {
		schemaOpts.GroupBy = opts.groupBy
	}
	if cmd.Flags().Changed("dialect") {
		dialect, err := schema.ParseDialect(opts.dialect)
		if err != nil {
			return err
		}
		schemaOpts.Dialect = dialect
	}

	idx, err := env.index(cmd.Context(), opts.snapshot)
	if err != nil {
		return err
	}

	toFile := opts.output != "" && opts.output != "-"
	if toFile {
		err = schema.WriteFile(opts.output, idx, target, schemaOpts)
	} else {
		err = schema.Write(cmd.OutOrStdout(), idx, target, schemaOpts)
	}
	if err := reportFieldErrors(cmd, err, opts.strict); err != nil {
		return err
	}

	if toFile {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %s export of %d field(s) to %s\n", target, idx.Len(), opts.output)
	}
	return nil
}

// reportFieldErrors lists fields the export degraded to TEXT. Any other
// error is returned unchanged.
func reportFieldErrors(cmd *cobra.Command, err error, strict bool) error {
	var errs metadata.CastErrors
	if !errors.As(err, &errs) {
		return err
	}

	ui.FieldErrors(cmd.ErrOrStderr(), "-", errs, color.NoColor)
	warningColor := color.New(color.FgYellow)
	warningColor.Fprintf(cmd.ErrOrStderr(), "%d field(s) with an unknown validation type exported as TEXT\n", len(errs))
	if strict {
		return fmt.Errorf("%d field(s) have an unknown validation type", len(errs))
	}
	return nil
}
