package main

import (
	"strings"

	"github.com/rimraf-adi/socrates"
	"github.com/spf13/cobra"
)

var refineCmd = &cobra.Command{
	Use:   "refine <task or file>",
	Short: "Draft an answer and improve it through critique cycles",
	Long: `Refine drafts an answer to the task, has it reviewed, and revises it for the
given number of cycles. If the argument names an existing file, its content is
used as the task.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		iterations, _ := cmd.Flags().GetInt("iterations")
		useTools, _ := cmd.Flags().GetBool("tools")
		runID, _ := cmd.Flags().GetString("run-id")
		req := socrates.Request{
			Task:          strings.Join(args, " "),
			MaxIterations: iterations,
			UseTools:      useTools,
			RunID:         runID,
		}
		return app.Refine(cmd.Context(), req, runOptions(cmd))
	},
}

func init() {
	rootCmd.AddCommand(refineCmd)
	refineCmd.Flags().IntP("iterations", "n", 3, "Number of generate and critique cycles")
	refineCmd.Flags().Bool("tools", false, "Let the generator call web_search and read_file")
	refineCmd.Flags().String("run-id", "", "Run identifier (generated when empty)")
	addRunFlags(refineCmd)
}
