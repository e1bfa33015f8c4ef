package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-media/internal/adapters/driving/mcp"
)

var (
	mcpPort int
	mcpHost string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the media index to AI assistants",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Exposes media search to Model Context Protocol clients.

Tools: search_media, plus ingest_media and task_status when ingestion is
configured. Resources: the person registry and individual task states.

Without --port the server speaks JSON-RPC on stdin/stdout, which is what
desktop assistants launch as a subprocess:

  {"mcpServers": {"sercha-media": {"command": "sercha-media", "args": ["mcp", "serve"]}}}

With --port it serves the streamable HTTP transport at /mcp and a
liveness probe at /healthz.`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 serves stdio)")
	mcpServeCmd.Flags().StringVar(&mcpHost, "host", "localhost", "HTTP bind host")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if mcpPort < 0 || mcpPort > 65535 {
		return fmt.Errorf("invalid --port %d", mcpPort)
	}

	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Search: searchService,
		Ingest: ingestService,
		Person: personService,
	})
	if err != nil {
		return err
	}

	if mcpPort == 0 {
		return server.Run(ctx)
	}
	addr := net.JoinHostPort(mcpHost, strconv.Itoa(mcpPort))
	cmd.PrintErrf("MCP server listening on http://%s/mcp\n", addr)
	return server.RunHTTP(ctx, addr)
}
