package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/ogm/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print or apply index and constraint statements",
}

var schemaPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the statements for the model and the configured schema file",
	RunE:  runSchemaPrint,
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create (assert) or drop indexes and constraints",
	Long: `Apply runs each schema statement in its own auto-commit transaction.

Examples:
  # Create missing indexes and constraints
  ogm schema apply --mode assert

  # Use the configured auto index mode (OGM_AUTO_INDEX)
  ogm schema apply`,
	RunE: runSchemaApply,
}

var (
	printDrop bool
	applyMode string
)

func init() {
	schemaCmd.AddCommand(schemaPrintCmd)
	schemaCmd.AddCommand(schemaApplyCmd)

	schemaPrintCmd.Flags().BoolVar(&printDrop, "drop", false, "print drop statements instead")
	schemaApplyCmd.Flags().StringVar(&applyMode, "mode", "", "assert, drop, dump or none (default: configured auto index mode)")
}

func runSchemaPrint(cmd *cobra.Command, args []string) error {
	defs, err := schemaDefinitions()
	if err != nil {
		return err
	}
	mode := schema.ModeDump
	if printDrop {
		mode = schema.ModeDrop
	}
	stmts, err := schema.Plan(mode, defs)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		fmt.Fprintln(cmd.OutOrStdout(), stmt.Text+";")
	}
	return nil
}

func runSchemaApply(cmd *cobra.Command, args []string) error {
	raw := applyMode
	if raw == "" {
		raw = cfg.Schema.AutoIndex
	}
	mode, err := schema.ParseMode(raw)
	if err != nil {
		return err
	}
	defs, err := schemaDefinitions()
	if err != nil {
		return err
	}

	var mgr *schema.Manager
	if mode == schema.ModeAssert || mode == schema.ModeDrop {
		ctx := cmd.Context()
		client, err := connect(ctx)
		if err != nil {
			return err
		}
		defer client.Close(ctx)
		mgr = schema.NewManager(client)
	} else {
		mgr = schema.NewManager(nil)
	}

	report, err := mgr.Apply(cmd.Context(), mode, defs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch mode {
	case schema.ModeNone:
		fmt.Fprintln(out, "auto index mode is none; nothing to do")
	case schema.ModeDump:
		for _, stmt := range report.Statements {
			fmt.Fprintln(out, stmt.Text+";")
		}
	default:
		c := report.Counters
		fmt.Fprintf(out, "%s: %d statement(s), indexes +%d/-%d, constraints +%d/-%d\n",
			mode, len(report.Statements), c.IndexesAdded, c.IndexesRemoved, c.ConstraintsAdded, c.ConstraintsRemoved)
	}
	return nil
}
