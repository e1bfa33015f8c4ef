package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// maxExampleBytes caps example media read for a query.
const maxExampleBytes = 64 << 20

var (
	searchLimit        int
	searchJSON         bool
	searchMode         string
	searchImage        string
	searchAudio        string
	searchVideo        string
	searchStart        float64
	searchEnd          float64
	searchTimeAccurate bool
	searchFiles        []string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed media",
	Long: `Finds moments in indexed images, video and audio.

A query is free text, an example file (--image, --audio, --video) or a mix.
Smart mode weighs every modality by the shape of the query; the other modes
search one collection: visual, music, speech or face.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.IntVarP(&searchLimit, "limit", "n", domain.DefaultQueryLimit, "maximum number of results")
	f.BoolVar(&searchJSON, "json", false, "output results as JSON")
	f.StringVarP(&searchMode, "mode", "m", string(domain.SearchModeSmart), "smart, visual, music, speech or face")
	f.StringVar(&searchImage, "image", "", "example image file")
	f.StringVar(&searchAudio, "audio", "", "example audio file")
	f.StringVar(&searchVideo, "video", "", "example video file")
	f.Float64Var(&searchStart, "start", -1, "only moments after this many seconds")
	f.Float64Var(&searchEnd, "end", -1, "only moments before this many seconds")
	f.BoolVar(&searchTimeAccurate, "time-accurate", false, "widen the time window by the timestamp tolerance")
	f.StringSliceVar(&searchFiles, "file", nil, "restrict to these file ids")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	req, err := buildSearchRequest(args)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}
	if searchService == nil {
		return errors.New("search service not configured")
	}

	results, err := searchService.Search(ctx, req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func buildSearchRequest(args []string) (domain.QueryRequest, error) {
	req := domain.QueryRequest{
		Mode:         domain.SearchMode(strings.ToLower(searchMode)),
		TimeAccurate: searchTimeAccurate,
		Limit:        searchLimit,
		FileIDs:      searchFiles,
	}
	if len(args) == 1 {
		req.Text = strings.TrimSpace(args[0])
	}

	var err error
	if req.Image, err = readExample(searchImage); err != nil {
		return req, err
	}
	if req.Audio, err = readExample(searchAudio); err != nil {
		return req, err
	}
	if req.Video, err = readExample(searchVideo); err != nil {
		return req, err
	}

	if searchStart >= 0 || searchEnd >= 0 {
		tr := domain.TimeRange{EndMs: math.MaxInt64 / 2}
		if searchStart >= 0 {
			tr.StartMs = int64(searchStart * 1000)
		}
		if searchEnd >= 0 {
			tr.EndMs = int64(searchEnd * 1000)
		}
		req.TimeRange = &tr
	}

	if !req.HasInput() {
		return req, fmt.Errorf("%w: give query text or an example file", domain.ErrInvalidInput)
	}
	return req, req.Validate()
}

func readExample(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if info.Size() > maxExampleBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d MB", domain.ErrInvalidInput, path, maxExampleBytes>>20)
	}
	return os.ReadFile(path)
}

type searchResultJSON struct {
	FileID     string             `json:"file_id"`
	URI        string             `json:"uri"`
	SegmentID  string             `json:"segment_id,omitempty"`
	StartMs    int64              `json:"start_ms"`
	EndMs      int64              `json:"end_ms"`
	Precision  string             `json:"precision"`
	Score      float64            `json:"score"`
	Scores     map[string]float64 `json:"scores"`
	Transcript string             `json:"transcript,omitempty"`
}

func outputSearchJSON(cmd *cobra.Command, results []domain.FusedResult) error {
	out := make([]searchResultJSON, len(results))
	for i := range results {
		r := &results[i]
		scores := make(map[string]float64, len(r.Scores))
		for m, v := range r.Scores {
			scores[m.String()] = v
		}
		out[i] = searchResultJSON{
			FileID:     r.FileID,
			URI:        r.URI,
			SegmentID:  r.SegmentID,
			StartMs:    r.StartMs,
			EndMs:      r.EndMs,
			Precision:  r.TimePrecision,
			Score:      r.FusedScore,
			Scores:     scores,
			Transcript: r.Transcript,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.FusedResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	p := newPainter(cmd.OutOrStdout())
	cmd.Println(p.render(titleStyle, "Results:"))
	cmd.Println()
	for i := range results {
		r := &results[i]
		// Format: [N] uri @ start-end (score)
		span := formatMs(r.StartMs) + "-" + formatMs(r.EndMs)
		if r.TimePrecision != "" {
			span += " " + r.TimePrecision
		}
		cmd.Printf("  [%d] %s @ %s %s\n", i+1, r.URI,
			p.render(timeStyle, span), p.render(scoreStyle, fmt.Sprintf("(%.3f)", r.FusedScore)))
		cmd.Printf("      %s\n", p.render(dimStyle, formatScores(r.Scores)))
		if r.Transcript != "" {
			cmd.Printf("      %q\n", r.Transcript)
		}
		cmd.Println()
	}
	return nil
}

// formatScores lists per-modality scores in a stable order.
func formatScores(scores map[domain.Modality]float64) string {
	keys := make([]string, 0, len(scores))
	for m := range scores {
		keys = append(keys, m.String())
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.3f", k, scores[domain.Modality(k)])
	}
	return strings.Join(parts, " ")
}
