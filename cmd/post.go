package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/everylotbot/everylot/internal/bot"
)

// newPostCmd creates and configures the 'post' subcommand.
func newPostCmd() *cobra.Command {
	var (
		dryRun    bool
		lotID     int64
		noImage   bool
		saveImage bool
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Publish one lot to the feed",
		Long: `Selects the lowest-ID unposted lot (or the lot named by --id), renders
its caption and street view, publishes the post, and marks the lot
posted. Prints the run outcome as JSON.

Exits 0 when a post was made or simulated, 3 when every lot has already
been posted, and 1 when the run aborted.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			out, err := a.Controller().Run(cmd.Context(), bot.RunParams{
				DryRun:    dryRun,
				LotID:     lotID,
				SkipImage: noImage,
				SaveImage: saveImage,
			})
			if err != nil {
				return err
			}

			if err := writeOutcome(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if out.Status == bot.StatusExhausted {
				return &exitError{code: exitExhausted, msg: "every lot has been posted"}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "render without publishing or marking posted")
	cmd.Flags().Int64Var(&lotID, "id", 0, "post a specific lot instead of the next unposted one")
	cmd.Flags().BoolVar(&noImage, "no-image", false, "skip the street view lookup and post caption-only")
	cmd.Flags().BoolVar(&saveImage, "save-image", false, "archive the fetched image even on a dry run")

	return cmd
}

func writeOutcome(w io.Writer, out bot.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	return nil
}
