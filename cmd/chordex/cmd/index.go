package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chordex/chordex/internal/cache"
	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/voicing"
)

// voicingFile is the on-disk YAML layout produced by the upstream
// voicing indexer.
type voicingFile struct {
	Voicings []voicingEntry `yaml:"voicings"`
}

type voicingEntry struct {
	ID             string    `yaml:"id"`
	ChordName      string    `yaml:"chord_name"`
	Vector         []float64 `yaml:"vector"`
	TextVector     []float64 `yaml:"text_vector"`
	Difficulty     string    `yaml:"difficulty"`
	Position       string    `yaml:"position"`
	MinFret        int       `yaml:"min_fret"`
	MaxFret        int       `yaml:"max_fret"`
	FingerCount    int       `yaml:"finger_count"`
	HandStretch    int       `yaml:"hand_stretch"`
	RequiresBarre  bool      `yaml:"requires_barre"`
	StackingType   string    `yaml:"stacking_type"`
	RootPitchClass int       `yaml:"root_pitch_class"`
	BassPitchClass int       `yaml:"bass_pitch_class"`
	Inversion      int       `yaml:"inversion"`
	Consonance     float64   `yaml:"consonance"`
	Brightness     float64   `yaml:"brightness"`
	Rootless       bool      `yaml:"rootless"`
	GuideTone      bool      `yaml:"guide_tone"`
	DropVoicing    bool      `yaml:"drop_voicing"`
	OpenString     bool      `yaml:"open_string"`
	CAGEDShape     string    `yaml:"caged_shape"`
	SetClassID     string    `yaml:"set_class_id"`
	SemanticTags   []string  `yaml:"tags"`
	PossibleKeys   []string  `yaml:"possible_keys"`
	OmittedTones   []string  `yaml:"omitted_tones"`
	DoubledTones   []string  `yaml:"doubled_tones"`
	AlternateNames []string  `yaml:"alternate_names"`
	Description    string    `yaml:"description"`
	MIDINotes      []int     `yaml:"midi_notes"`
}

func newIndexCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "index <voicings.yaml>",
		Short: "Build the binary voicing cache from a YAML document file",
		Long: `Read a voicing document file, validate it, and write the binary
search cache. Subsequent search commands load the cache instead of
re-parsing the source.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], out)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Cache output path (default: cache.path from config)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, srcPath, out string) error {
	docs, err := loadVoicingFile(srcPath)
	if err != nil {
		return err
	}

	cachePath := out
	if cachePath == "" {
		cachePath = cliConfig.Cache.Path
	}
	if err := cache.Save(ctx, cachePath, docs); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d voicings to %s\n", len(docs), cachePath)
	return nil
}

// loadVoicingFile parses the YAML document file into cache documents,
// preserving each entry's raw definition for reconstruction.
func loadVoicingFile(path string) ([]voicing.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cherr.New(cherr.ErrCodeInvalidInput, "cannot read voicing file", err).
			WithDetail("path", path)
	}

	var file voicingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, cherr.New(cherr.ErrCodeInvalidInput, "malformed voicing file", err).
			WithDetail("path", path)
	}

	docs := make([]voicing.Document, 0, len(file.Voicings))
	for i, entry := range file.Voicings {
		if entry.ID == "" {
			return nil, cherr.New(cherr.ErrCodeInvalidInput, "voicing entry missing id", nil).
				WithDetail("index", fmt.Sprintf("%d", i))
		}
		if len(entry.Vector) == 0 {
			return nil, cherr.New(cherr.ErrCodeInvalidInput, "voicing entry missing vector", nil).
				WithDetail("id", entry.ID)
		}

		raw, err := yaml.Marshal(entry)
		if err != nil {
			return nil, cherr.New(cherr.ErrCodeInvalidInput, "cannot re-encode voicing entry", err).
				WithDetail("id", entry.ID)
		}

		docs = append(docs, voicing.Document{
			Embedding: voicing.Embedding{
				ID:             entry.ID,
				Vector:         entry.Vector,
				TextVector:     entry.TextVector,
				ChordName:      entry.ChordName,
				DifficultyTier: entry.Difficulty,
				Position:       entry.Position,
				MinFret:        entry.MinFret,
				MaxFret:        entry.MaxFret,
				FingerCount:    entry.FingerCount,
				HandStretch:    entry.HandStretch,
				RequiresBarre:  entry.RequiresBarre,
				StackingType:   entry.StackingType,
				RootPitchClass: entry.RootPitchClass,
				BassPitchClass: entry.BassPitchClass,
				Inversion:      entry.Inversion,
				Consonance:     entry.Consonance,
				Brightness:     entry.Brightness,
				IsRootless:     entry.Rootless,
				IsGuideTone:    entry.GuideTone,
				IsDropVoicing:  entry.DropVoicing,
				UsesOpenString: entry.OpenString,
				CAGEDShape:     entry.CAGEDShape,
				SetClassID:     entry.SetClassID,
				SemanticTags:   entry.SemanticTags,
				PossibleKeys:   entry.PossibleKeys,
				OmittedTones:   entry.OmittedTones,
				DoubledTones:   entry.DoubledTones,
				AlternateNames: entry.AlternateNames,
				Description:    entry.Description,
			},
			YAML:      string(raw),
			MIDINotes: entry.MIDINotes,
		})
	}
	return docs, nil
}
