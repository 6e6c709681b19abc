package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redcapp/redcapp/internal/logic"
)

func newLogicCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logic",
		Short: "Translate and evaluate branching logic",
		Long: `Translate branching logic between the platform and host forms.

  load  - platform form to host form:  [age] >= 18  ->  lookup("age") >= 18
  dump  - host form back to platform form
  eval  - evaluate logic against field=value pairs`,
	}

	cmd.AddCommand(newLogicLoadCommand())
	cmd.AddCommand(newLogicDumpCommand())
	cmd.AddCommand(newLogicEvalCommand())

	return cmd
}

func newLogicLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <logic>",
		Short: "Translate platform logic to host form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := logic.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), host)
			return nil
		},
	}
}

func newLogicDumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <logic>",
		Short: "Translate host logic back to platform form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := logic.Dump(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), platform)
			return nil
		},
	}
}

func newLogicEvalCommand() *cobra.Command {
	var host bool

	cmd := &cobra.Command{
		Use:   "eval <logic> [field=value ...]",
		Short: "Evaluate logic against a record",
		Long: `Evaluate branching logic against a record given as field=value pairs.
Checkbox choices use their export names, e.g. consent___1=1.`,
		Example: `  redcapp logic eval "[age] >= 18 and [consent(1)] = '1'" age=20 consent___1=1`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := args[0]
			if !host {
				loaded, err := logic.Load(expr)
				if err != nil {
					return err
				}
				expr = loaded
			}

			env, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}

			visible, err := logic.Evaluate(expr, env)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), visible)
			return nil
		},
	}

	cmd.Flags().BoolVar(&host, "host", false, "Logic is already in host form")

	return cmd
}

// parseAssignments reads field=value pairs. Values may be empty or
// contain '='.
func parseAssignments(pairs []string) (logic.MapEnv, error) {
	env := make(logic.MapEnv, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field assignment %q, expected field=value", pair)
		}
		env[key] = value
	}
	return env, nil
}
