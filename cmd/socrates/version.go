package main

import (
	"fmt"

	"github.com/rimraf-adi/socrates"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of socrates",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "socrates version %s\n", socrates.Version)
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured providers and models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		app.Models()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, modelsCmd)
}
