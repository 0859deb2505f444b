package main

import (
	"strings"

	"github.com/rimraf-adi/socrates"
	"github.com/spf13/cobra"
)

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Research a question and write a cited report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		depth, _ := cmd.Flags().GetString("depth")
		iterations, _ := cmd.Flags().GetInt("iterations")
		runID, _ := cmd.Flags().GetString("run-id")
		req := socrates.Request{
			Task:          strings.Join(args, " "),
			Depth:         depth,
			MaxIterations: iterations,
			RunID:         runID,
		}
		return app.Research(cmd.Context(), req, runOptions(cmd))
	},
}

func init() {
	rootCmd.AddCommand(researchCmd)
	researchCmd.Flags().StringP("depth", "d", "", "quick, standard, deep or exhaustive (default: chosen by the planner)")
	researchCmd.Flags().IntP("iterations", "n", 0, "Override the cycle budget of the depth")
	researchCmd.Flags().String("run-id", "", "Run identifier (generated when empty)")
	addRunFlags(researchCmd)
}
