package cli

import (
	"context"
	"fmt"

	mcpserversdk "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/knowcode/knowcode/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server exposing the retrieval API over stdio",
	Long: `mcp rebuilds the retrieval stack from a prior analyze run's persisted
index and serves retrieve_context_for_query, search_codebase,
get_entity_context, trace_calls, and get_impact as MCP tools over stdio,
so editor integrations and coding agents can query the codebase without
re-scanning it.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	rootDir, err := resolveRootDir()
	if err != nil {
		return err
	}
	rt, err := openQueryRuntime(context.Background(), rootDir)
	if err != nil {
		return fmt.Errorf("build retrieval backend: %w", err)
	}
	defer rt.Close()

	backend := &mcpserver.QueryBackend{
		Engine: rt.engine,
		Synth:  rt.synth,
		Store:  rt.st,
		Retrieval: mcpserver.RetrievalDefaults{
			TopN:       rt.cfg.Retrieval.TopN,
			RerankTopM: rt.cfg.Retrieval.RerankTopM,
		},
		EmbedFn: rt.embedQuery,
	}
	srv := mcpserver.New(backend)

	if !quietFlag {
		fmt.Println("knowcode MCP server starting on stdio...")
	}
	if err := mcpserversdk.ServeStdio(srv); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
