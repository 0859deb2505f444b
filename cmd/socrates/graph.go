package main

import (
	"fmt"

	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [refine|research]",
	Short: "Print a workflow as a Mermaid flowchart",
	Long: `Print the steps of a workflow and the edges between them as Mermaid.

With --run the workflow of that checkpointed run is printed and the step it
would resume at is highlighted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		tools, _ := cmd.Flags().GetBool("tools")

		mode := string(domain.ModeRefine)
		if len(args) == 1 {
			mode = args[0]
		}
		if runID == "" && mode != string(domain.ModeRefine) && mode != string(domain.ModeResearch) {
			return fmt.Errorf("unknown workflow %q (want refine or research)", mode)
		}

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.Graph(cmd.Context(), mode, runID, tools)
	},
}

func init() {
	graphCmd.Flags().String("run", "", "Highlight the next step of a checkpointed run")
	graphCmd.Flags().Bool("tools", false, "Show the refine workflow with the tool loop")
	rootCmd.AddCommand(graphCmd)
}
