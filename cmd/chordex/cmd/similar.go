package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

func newSimilarCmd() *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "similar <voicing-id>",
		Short: "Find voicings similar to an indexed one",
		Long: `Rank the cache against the stored vector of an indexed voicing.
The reference voicing itself is excluded from the results.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(cmd.Context(), cmd, args[0], limit, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSimilar(ctx context.Context, cmd *cobra.Command, id string, limit int, format string) error {
	svc, err := buildService(ctx, cliConfig)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	results, err := svc.FindSimilar(ctx, id, clampLimit(limit, cliConfig))
	if err != nil {
		return err
	}
	return printResults(cmd, "voicings like "+strings.TrimSpace(id), results, format)
}
