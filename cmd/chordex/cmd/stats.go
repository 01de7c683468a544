package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache and backend statistics",
		Long: `Load the voicing cache and report document counts, the active
search backend, and its memory footprint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statsOutput is the JSON shape for the stats command.
type statsOutput struct {
	Documents      int    `json:"documents"`
	KeywordDocs    int    `json:"keyword_docs"`
	Backend        string `json:"backend"`
	Dimensions     int    `json:"dimensions"`
	MemoryBytes    int64  `json:"memory_bytes"`
	DeviceResident bool   `json:"device_resident"`
	Embedder       string `json:"embedder,omitempty"`
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	svc, err := buildService(ctx, cliConfig)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	st := svc.Stats()
	out := cmd.OutOrStdout()

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(statsOutput{
			Documents:      st.Documents,
			KeywordDocs:    st.KeywordDocs,
			Backend:        st.Strategy.Backend,
			Dimensions:     st.Strategy.Dimensions,
			MemoryBytes:    st.Strategy.MemoryBytes,
			DeviceResident: st.Strategy.DeviceResident,
			Embedder:       st.Embedder,
		})
	}

	fmt.Fprintf(out, "Documents:    %d\n", st.Documents)
	fmt.Fprintf(out, "Keyword docs: %d\n", st.KeywordDocs)
	fmt.Fprintf(out, "Backend:      %s\n", st.Strategy.Backend)
	fmt.Fprintf(out, "Dimensions:   %d\n", st.Strategy.Dimensions)
	fmt.Fprintf(out, "Memory:       %d bytes\n", st.Strategy.MemoryBytes)
	fmt.Fprintf(out, "On device:    %v\n", st.Strategy.DeviceResident)
	if st.Embedder != "" {
		fmt.Fprintf(out, "Embedder:     %s\n", st.Embedder)
	}
	return nil
}
