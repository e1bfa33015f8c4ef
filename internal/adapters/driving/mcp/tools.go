package mcp

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// maxExampleBytes caps example media read from disk for a query.
const maxExampleBytes = 64 << 20

// openEndMs stands in for a missing end bound; halved so tolerance math cannot overflow.
const openEndMs = math.MaxInt64 / 2

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query        string   `json:"query,omitempty" jsonschema:"free-text description of what to find"`
	ImagePath    string   `json:"image_path,omitempty" jsonschema:"local path of an example image"`
	AudioPath    string   `json:"audio_path,omitempty" jsonschema:"local path of an example audio clip"`
	VideoPath    string   `json:"video_path,omitempty" jsonschema:"local path of an example video clip"`
	Mode         string   `json:"mode,omitempty" jsonschema:"smart (default), visual, music, speech or face"`
	StartSec     *float64 `json:"start_sec,omitempty" jsonschema:"only return moments after this many seconds"`
	EndSec       *float64 `json:"end_sec,omitempty" jsonschema:"only return moments before this many seconds"`
	TimeAccurate bool     `json:"time_accurate,omitempty" jsonschema:"widen the time window by the timestamp tolerance"`
	FileIDs      []string `json:"file_ids,omitempty" jsonschema:"restrict results to these files"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 20)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
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

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	URIs []string `json:"uris" jsonschema:"local paths or s3:// URIs of media files"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	TaskIDs []string `json:"task_ids"`
}

// TaskStatusInput is the input schema for the task_status tool.
type TaskStatusInput struct {
	TaskID string `json:"task_id" jsonschema:"id returned by the ingest tool"`
}

// TaskOutput is a snapshot of an ingestion task.
type TaskOutput struct {
	TaskID         string  `json:"task_id"`
	FileID         string  `json:"file_id"`
	URI            string  `json:"uri"`
	State          string  `json:"state"`
	Progress       float64 `json:"progress"`
	RetryCount     int     `json:"retry_count"`
	FailedSegments int     `json:"failed_segments"`
	TotalSegments  int     `json:"total_segments"`
	ErrorKind      string  `json:"error_kind,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Find moments in indexed images, video and audio by text or example media",
	}, s.handleSearch)

	if s.ports.Ingest == nil {
		return
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest",
		Description: "Submit media files for indexing; returns one task id per file",
	}, s.handleIngest)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "task_status",
		Description: "Report the state and progress of an ingestion task",
	}, s.handleTaskStatus)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	req, err := input.toRequest()
	if err != nil {
		return nil, SearchOutput{}, err
	}

	results, err := s.ports.Search.Search(ctx, req)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		r := &results[i]
		scores := make(map[string]float64, len(r.Scores))
		for m, v := range r.Scores {
			scores[m.String()] = v
		}
		output.Results[i] = SearchResultOutput{
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

	return nil, output, nil
}

func (in SearchInput) toRequest() (domain.QueryRequest, error) {
	req := domain.QueryRequest{
		Text:         in.Query,
		Mode:         domain.SearchMode(in.Mode),
		TimeAccurate: in.TimeAccurate,
		Limit:        in.Limit,
		FileIDs:      in.FileIDs,
	}

	var err error
	if req.Image, err = readExample(in.ImagePath); err != nil {
		return req, err
	}
	if req.Audio, err = readExample(in.AudioPath); err != nil {
		return req, err
	}
	if req.Video, err = readExample(in.VideoPath); err != nil {
		return req, err
	}

	if in.StartSec != nil || in.EndSec != nil {
		tr := domain.TimeRange{}
		if in.StartSec != nil {
			tr.StartMs = int64(*in.StartSec * 1000)
		}
		if in.EndSec != nil {
			tr.EndMs = int64(*in.EndSec * 1000)
		} else {
			tr.EndMs = openEndMs
		}
		req.TimeRange = &tr
	}

	if !req.HasInput() {
		return req, fmt.Errorf("%w: provide query text or an example media path", domain.ErrInvalidInput)
	}
	return req, nil
}

func readExample(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: example %s: %w", domain.ErrInvalidInput, path, err)
	}
	if info.Size() > maxExampleBytes {
		return nil, fmt.Errorf("%w: example %s is larger than %d bytes", domain.ErrInvalidInput, path, maxExampleBytes)
	}
	return os.ReadFile(path)
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	if len(input.URIs) == 0 {
		return nil, IngestOutput{}, fmt.Errorf("%w: no uris given", domain.ErrInvalidInput)
	}
	ids, err := s.ports.Ingest.BatchSubmit(ctx, input.URIs)
	if err != nil {
		return nil, IngestOutput{}, err
	}
	return nil, IngestOutput{TaskIDs: ids}, nil
}

// handleTaskStatus handles the task_status tool invocation.
func (s *Server) handleTaskStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TaskStatusInput,
) (*mcp.CallToolResult, TaskOutput, error) {
	task, err := s.ports.Ingest.Status(ctx, input.TaskID)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, toTaskOutput(task), nil
}

func toTaskOutput(task *domain.ProcessingTask) TaskOutput {
	out := TaskOutput{
		TaskID:         task.ID,
		FileID:         task.FileID,
		URI:            task.URI,
		State:          task.State.String(),
		Progress:       task.Progress,
		RetryCount:     task.RetryCount,
		FailedSegments: task.FailedSegments,
		TotalSegments:  task.TotalSegments,
	}
	if task.Error != nil {
		out.ErrorKind = task.Error.Kind.String()
		out.Error = task.Error.Message
	}
	return out
}
