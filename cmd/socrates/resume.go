package main

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue an interrupted run from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.Resume(cmd.Context(), args[0], runOptions(cmd))
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List checkpointed runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.ListRuns(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd, runsCmd)
	addRunFlags(resumeCmd)
}
