package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/everylotbot/everylot/internal/bot"
)

// newValidateCmd creates and configures the 'validate' subcommand.
func newValidateCmd() *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Sweep the dataset for captions that would not fit",
		Long: `Renders the caption of every lot, posted or not, and reports the ones
longer than the configured limit. Exits 1 when offenders exist so the
sweep can gate dataset imports.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			report, err := a.Controller().Validate(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if err := writeReport(cmd.OutOrStdout(), output, report); err != nil {
				return err
			}
			if !report.Clean() {
				return &exitError{
					code: exitAborted,
					msg: fmt.Sprintf("%d of %d captions exceed %d characters",
						len(report.Offenders), report.Checked, report.MaxLength),
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "check at most this many lots (0 means all)")
	cmd.Flags().StringVar(&output, "output", "", "write the JSON report to a file instead of stdout")

	return cmd
}

func writeReport(stdout io.Writer, path string, report bot.ValidationReport) error {
	if path == "" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
