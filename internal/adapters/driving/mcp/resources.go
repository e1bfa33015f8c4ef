package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for sercha-media resources.
	uriScheme = "sercha-media://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing registered people.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "persons",
		Name:        "persons",
		Description: "People registered for face search",
		MIMEType:    "application/json",
	}, s.handlePersonsResource)

	if s.ports.Ingest == nil {
		return
	}

	// Template for ingestion tasks.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "tasks/{taskId}",
		Name:        "task",
		Description: "State and progress of an ingestion task",
		MIMEType:    "application/json",
	}, s.handleTaskResource)
}

// handlePersonsResource returns the registered people without their vectors.
func (s *Server) handlePersonsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Person == nil {
		return jsonResult(req.Params.URI, "[]"), nil
	}

	persons, err := s.ports.Person.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing persons: %w", err)
	}

	type personInfo struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Aliases []string `json:"aliases,omitempty"`
		Photos  int      `json:"photos"`
	}

	infos := make([]personInfo, len(persons))
	for i := range persons {
		infos[i] = personInfo{
			ID:      persons[i].ID,
			Name:    persons[i].Name,
			Aliases: persons[i].Aliases,
			Photos:  len(persons[i].FaceVectors),
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling persons: %w", err)
	}
	return jsonResult(req.Params.URI, string(data)), nil
}

// handleTaskResource returns one ingestion task.
func (s *Server) handleTaskResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract taskId from URI: sercha-media://tasks/{taskId}
	taskID := extractTaskID(req.Params.URI)
	if taskID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	task, err := s.ports.Ingest.Status(ctx, taskID)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	data, err := json.MarshalIndent(toTaskOutput(task), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling task: %w", err)
	}
	return jsonResult(req.Params.URI, string(data)), nil
}

func jsonResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		}},
	}
}

// extractTaskID extracts the task ID from a URI like sercha-media://tasks/{taskId}.
func extractTaskID(uri string) string {
	const prefix = uriScheme + "tasks/"

	id, ok := strings.CutPrefix(uri, prefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
