// Package cmd defines the CLI commands for the everylot executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/everylotbot/everylot/internal/app"
	"github.com/everylotbot/everylot/internal/bot"
	"github.com/everylotbot/everylot/internal/config"
)

// Exit codes returned by Execute. Schedulers key off these: 3 means the
// dataset is finished and the job should be disabled, not retried.
const (
	exitOK        = 0
	exitAborted   = 1
	exitExhausted = 3
)

var (
	cfgFile string
	verbose bool
)

// appKey is the context key commands use to reach the built application.
type appKey struct{}

// application is the surface commands need from the assembled app.
type application interface {
	Controller() *bot.Controller
	Run(ctx context.Context) error
	Close()
}

// buildApp is the application factory. It is a variable so tests can
// substitute a fixture.
var buildApp = func(ctx context.Context, cfg *config.Config, verbose bool) (application, error) {
	return app.Build(ctx, cfg, verbose)
}

// exitError carries a specific process exit code through cobra.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "everylot",
		Short: "Posts one Cincinnati lot at a time to Bluesky",
		Long: `everylot selects the next unposted parcel from the Hamilton County
Auditor dataset, renders its caption and street view image, publishes
the post to Bluesky, and durably marks the parcel posted.

Each invocation makes at most one post; scheduling is external.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flag parsing, before the subcommand's RunE. Builds
		// the application and hands it to subcommands via the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			// --save-image asks to keep the bytes; with no archive
			// configured they would go nowhere, so use the local dir.
			if f := cmd.Flags().Lookup("save-image"); f != nil && f.Changed && cfg.Archive.Provider == "noop" {
				cfg.Archive.Provider = "local"
			}

			a, err := buildApp(cmd.Context(), &cfg, verbose)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey{}).(application); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables apply either way)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newPostCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// resolveApp retrieves the application placed in the context by the root
// command's PersistentPreRunE.
func resolveApp(ctx context.Context) (application, error) {
	a, ok := ctx.Value(appKey{}).(application)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		var xe *exitError
		if errors.As(err, &xe) {
			if xe.msg != "" {
				fmt.Fprintln(stderr, xe.msg)
			}
			return xe.code
		}
		fmt.Fprintln(stderr, "Error:", err)
		return exitAborted
	}
	return exitOK
}
