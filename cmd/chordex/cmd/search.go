package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chordex/chordex/internal/search"
	"github.com/chordex/chordex/internal/voicing"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	fused  bool
	format string

	difficulty string
	position   string
	caged      string
	minFret    int
	maxFret    int
	maxStretch int
	barre      bool
	openString bool
	tags       []string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the voicing cache",
		Long: `Search indexed voicings by natural-language query.

Plain search ranks semantically. With --fused, lexical keyword hits are
blended in via reciprocal rank fusion. Any filter flag switches to the
hybrid filter-then-rank pipeline.

Examples:
  chordex search "warm jazzy voicing"
  chordex search "drop two" --fused --limit 5
  chordex search "open chord" --difficulty beginner --max-fret 3
  chordex search "rootless comping" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.fused, "fused", false, "Blend in lexical keyword hits (RRF fusion)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	cmd.Flags().StringVar(&opts.difficulty, "difficulty", "", "Filter by difficulty tier")
	cmd.Flags().StringVar(&opts.position, "position", "", "Filter by neck position")
	cmd.Flags().StringVar(&opts.caged, "caged", "", "Filter by CAGED shape")
	cmd.Flags().IntVar(&opts.minFret, "min-fret", 0, "Lowest fret must be at or above")
	cmd.Flags().IntVar(&opts.maxFret, "max-fret", 0, "Highest fret must be at or below")
	cmd.Flags().IntVar(&opts.maxStretch, "max-stretch", 0, "Maximum hand stretch in frets")
	cmd.Flags().BoolVar(&opts.barre, "barre", false, "Require (or with =false, exclude) barre voicings")
	cmd.Flags().BoolVar(&opts.openString, "open-strings", false, "Require (or with =false, exclude) open strings")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Require a semantic tag (repeatable)")

	return cmd
}

// filters assembles the hybrid filter set from the flags that were
// actually passed. Returns nil when no filter flag was set.
func (o *searchOptions) filters(cmd *cobra.Command) *voicing.SearchFilters {
	f := &voicing.SearchFilters{SemanticTags: o.tags}
	if o.difficulty != "" {
		f.Difficulty = &o.difficulty
	}
	if o.position != "" {
		f.Position = &o.position
	}
	if o.caged != "" {
		f.CAGEDShape = &o.caged
	}
	if cmd.Flags().Changed("min-fret") {
		f.MinFret = &o.minFret
	}
	if cmd.Flags().Changed("max-fret") {
		f.MaxFret = &o.maxFret
	}
	if cmd.Flags().Changed("max-stretch") {
		f.MaxStretch = &o.maxStretch
	}
	if cmd.Flags().Changed("barre") {
		f.RequiresBarre = &o.barre
	}
	if cmd.Flags().Changed("open-strings") {
		f.UsesOpenStrings = &o.openString
	}
	if f.Empty() {
		return nil
	}
	return f
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	svc, err := buildService(ctx, cliConfig)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	limit := clampLimit(opts.limit, cliConfig)

	var results []search.Result
	switch filters := opts.filters(cmd); {
	case filters != nil:
		results, err = svc.HybridSearch(ctx, query, filters, limit)
	case opts.fused:
		results, err = svc.HybridTextSearch(ctx, query, limit)
	default:
		results, err = svc.Search(ctx, query, limit)
	}
	if err != nil {
		return err
	}

	return printResults(cmd, query, results, opts.format)
}

// resultOutput is the JSON shape for a single search hit.
type resultOutput struct {
	ID         string   `json:"id"`
	ChordName  string   `json:"chord_name"`
	Score      float64  `json:"score"`
	Difficulty string   `json:"difficulty,omitempty"`
	Position   string   `json:"position,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func printResults(cmd *cobra.Command, query string, results []search.Result, format string) error {
	out := cmd.OutOrStdout()

	if format == "json" {
		hits := make([]resultOutput, 0, len(results))
		for _, r := range results {
			hits = append(hits, resultOutput{
				ID:         r.Document.ID,
				ChordName:  r.Document.ChordName,
				Score:      r.Score,
				Difficulty: r.Document.DifficultyTier,
				Position:   r.Document.Position,
				Tags:       r.Document.SemanticTags,
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(results) == 0 {
		fmt.Fprintf(out, "No results for %q\n", query)
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%2d. %-24s %-12s score=%.4f\n",
			i+1, r.Document.ChordName, r.Document.ID, r.Score)
		if r.Document.Description != "" {
			fmt.Fprintf(out, "    %s\n", r.Document.Description)
		}
	}
	return nil
}
