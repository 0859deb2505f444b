package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Serves the JSON and server-sent events API, the OpenAPI description at /openapi.yaml and metrics at /metrics.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		addr, _ := cmd.Flags().GetString("addr")
		return app.Serve(cmd.Context(), addr, nil)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the research and refine tools over the Model Context Protocol",
	Long:  `Serves on stdin and stdout by default. With --sse the server listens on the given address instead.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		addr, _ := cmd.Flags().GetString("sse")
		return app.ServeMCP(cmd.Context(), addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, mcpCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8000)")
	mcpCmd.Flags().String("sse", "", "Serve over SSE on this address, e.g. localhost:8080")
}
