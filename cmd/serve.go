package cmd

import (
	"github.com/spf13/cobra"
)

// newServeCmd creates and configures the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger API",
		Long: `Runs the HTTP interface so an external scheduler can trigger runs with
POST /v1/run instead of invoking the CLI. Blocks until interrupted.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}
