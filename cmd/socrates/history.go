package main

import (
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage recorded runs",
	Long:  `List, show and remove the records kept under $SOCRATES_HOME/research.`,
}

var historyLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List records, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		limit, _ := cmd.Flags().GetInt("limit")
		jsonMode, _ := cmd.Flags().GetBool("json")
		return app.ListHistory(cmd.Context(), limit, jsonMode)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print the document of a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		jsonMode, _ := cmd.Flags().GetBool("json")
		return app.ShowHistory(cmd.Context(), args[0], jsonMode)
	},
}

var historyRmCmd = &cobra.Command{
	Use:   "rm <name>...",
	Short: "Remove one or more records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.DeleteHistory(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyLsCmd, historyShowCmd, historyRmCmd)
	historyLsCmd.Flags().IntP("limit", "l", 20, "Maximum number of records")
	historyLsCmd.Flags().Bool("json", false, "Print JSON")
	historyShowCmd.Flags().Bool("json", false, "Print the full record as JSON")
}
