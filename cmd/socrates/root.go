package main

import (
	"fmt"
	"os"

	"github.com/rimraf-adi/socrates/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "socrates",
	Short: "Socrates refines answers and researches questions with a language model",
	Long: `Socrates runs bounded improvement loops over a local or hosted language model.

refine drafts an answer and improves it through generator and critic cycles.
research plans sub-questions, searches the web, analyzes the findings and
writes a cited report. Every run is recorded, and interrupted runs can be resumed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default $XDG_CONFIG_HOME/socrates/config.yaml)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("provider", "", "Generation backend: lmstudio, openai, groq or anthropic")
	flags.String("model", "", "Model identifier")
}

// newApp builds the application from the global flags.
func newApp(cmd *cobra.Command) (*cli.App, error) {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	logLevel, _ := flags.GetString("log-level")
	logFormat, _ := flags.GetString("log-format")
	provider, _ := flags.GetString("provider")
	model, _ := flags.GetString("model")

	return cli.NewApp(cli.Options{
		ConfigPath: configPath,
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		Provider:   provider,
		Model:      model,
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
	})
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Also write the final markdown to this file")
	cmd.Flags().Bool("json", false, "Print a JSON summary instead of the rendered output")
	cmd.Flags().BoolP("quiet", "q", false, "Hide the banner and step progress")
	cmd.Flags().BoolP("verbose", "v", false, "Show the research queue as it changes")
}

func runOptions(cmd *cobra.Command) cli.RunOptions {
	output, _ := cmd.Flags().GetString("output")
	jsonMode, _ := cmd.Flags().GetBool("json")
	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	return cli.RunOptions{Output: output, JSON: jsonMode, Quiet: quiet, Verbose: verbose}
}
