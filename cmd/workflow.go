package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"botweave/internal/domain"
	"botweave/internal/infrastructure/sqlite"
	"botweave/internal/paths"
	"botweave/internal/presentation"
	"botweave/internal/templates"
)

var workflowImportName string

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage stored workflows",
}

var workflowListTemplatesCmd = &cobra.Command{
	Use:   "list-templates",
	Short: "List the embedded starter workflows",
	Long: `List the starter workflows shipped with the binary as JSON.

Examples:
  botweave workflow list-templates
  botweave workflow list-templates | jq '.[].name'`,
	RunE: func(_ *cobra.Command, _ []string) error {
		tpls, err := templates.List()
		if err != nil {
			return err
		}
		dtos, err := presentation.FromTemplates(tpls)
		if err != nil {
			return err
		}
		return presentation.NewFormatter(os.Stdout).FormatTemplates(dtos)
	},
}

var workflowImportCmd = &cobra.Command{
	Use:   "import <template>",
	Short: "Import a starter workflow into the database",
	Long: `Render an embedded starter template into a workflow row. The new
workflow is enabled immediately; a running daemon picks it up on its
next reload (POST /api/workflows/reload).

Examples:
  botweave workflow import echo
  botweave workflow import scheduled-report --name morning-report`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowImport,
}

func init() {
	workflowImportCmd.Flags().StringVar(&workflowImportName, "name", "", "Name for the imported workflow (default: template name)")

	workflowCmd.AddCommand(workflowListTemplatesCmd)
	workflowCmd.AddCommand(workflowImportCmd)
	rootCmd.AddCommand(workflowCmd)
}

func runWorkflowImport(_ *cobra.Command, args []string) error {
	tpl, err := templates.Get(args[0])
	if err != nil {
		return err
	}

	db, err := sqlite.NewDB(paths.DBPath(paths.ResolveDataDir(cfg.DataDir)))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	name := workflowImportName
	if name == "" {
		name = tpl.Name
	}
	wf := &domain.Workflow{
		Name:     name,
		Enabled:  true,
		Priority: tpl.Priority,
		Config:   tpl.Config,
	}
	if err := db.Workflows().Save(wf); err != nil {
		return fmt.Errorf("saving workflow: %w", err)
	}

	return presentation.NewFormatter(os.Stdout).FormatWorkflow(presentation.FromWorkflow(wf))
}
