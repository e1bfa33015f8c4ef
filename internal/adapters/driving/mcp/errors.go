// Package mcp provides an MCP (Model Context Protocol) server adapter for
// sercha-media. It lets AI assistants search the media index, submit files
// and follow ingestion tasks.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
