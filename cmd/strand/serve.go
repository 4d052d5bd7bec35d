package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/strand/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only ops server",
	Long: `Serves Prometheus metrics, a health check, thread inspection and graph diagrams
over HTTP for the configured checkpoint store. It does not execute graphs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		debug, _ := cmd.Flags().GetBool("debug")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		return cli.Serve(ctx, cli.ServeOptions{ConfigPath: configPath(cmd), Addr: addr, Debug: debug})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().Bool("debug", false, "Enable debug logs on stderr")
}
