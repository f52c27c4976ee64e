package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/recordbase/bootstrap"
	"github.com/artpar/recordbase/config"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage models, workflows and validation rulesets",
	Long: `Manage the record schema.

Examples:
  recordbase schema apply -f schema.yaml
  cat schema.yaml | recordbase schema apply -f -
  recordbase schema list`,
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update schema entities from a YAML document",
	RunE:  runSchemaApply,
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List models",
	RunE:  runSchemaList,
}

var (
	schemaFile  string
	schemaActor string
)

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaApplyCmd)
	schemaCmd.AddCommand(schemaListCmd)

	schemaApplyCmd.Flags().StringVarP(&schemaFile, "file", "f", "", "schema document, or - for stdin (required)")
	schemaApplyCmd.Flags().StringVar(&schemaActor, "actor", "cli", "actor recorded in the structural changelog")
	schemaApplyCmd.MarkFlagRequired("file")
}

func runSchemaApply(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if schemaFile != "-" {
		f, err := os.Open(schemaFile)
		if err != nil {
			return fmt.Errorf("failed to open schema document: %w", err)
		}
		defer f.Close()
		r = f
	}
	doc, err := bootstrap.ParseSchemaDocument(r)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	svc := bootstrap.NewServices(db.Store, bootstrap.Options{}, config.SharingConfig{}, zerolog.Nop())
	res, err := bootstrap.ApplySchema(cmd.Context(), svc, doc, schemaActor)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s Schema apply failed\n", crossMark)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Schema applied: %d created, %d updated\n", checkMark, res.Created, res.Updated)
	return nil
}

func runSchemaList(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	svc := bootstrap.NewServices(db.Store, bootstrap.Options{}, config.SharingConfig{}, zerolog.Nop())
	models, err := svc.Schema.ListModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	if len(models) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No models found.")
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), "Define some with: recordbase schema apply -f schema.yaml")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPROPERTIES\tWORKFLOW")
	fmt.Fprintln(w, "--\t----\t----------\t--------")
	for _, m := range models {
		wf := "-"
		if m.WorkflowID != "" {
			wf = m.WorkflowID
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.ID, m.Name, len(m.Properties), wf)
	}
	return w.Flush()
}
