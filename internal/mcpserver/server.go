// Package mcpserver exposes the Retrieval API over the Model Context
// Protocol: retrieve_context_for_query, search_codebase,
// get_entity_context, trace_calls, and get_impact as MCP tools backed by a
// Search Engine, Context Synthesizer, and Knowledge Store rebuilt from a
// prior analyze run's persisted index. Grounded on the teacher's
// internal/mcp/server.go (MCPServer lifecycle, one composable
// AddXTool/createXHandler pair per tool) and internal/mcp/tool.go
// (argument extraction from request.Params.Arguments, JSON text results).
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/knowcode/knowcode/internal/model"
	"github.com/knowcode/knowcode/internal/search"
	"github.com/knowcode/knowcode/internal/store"
	"github.com/knowcode/knowcode/internal/synth"
)

// QueryBackend is everything a retrieve_context_for_query-shaped tool
// needs: a Search Engine to rank entities, a Context Synthesizer to build
// the bundle, and a query embedder (nil degrades to lexical-only
// retrieval).
type QueryBackend struct {
	Engine   *search.Engine
	Synth    *synth.Synthesizer
	Store    *store.Store
	Retrieval RetrievalDefaults
	EmbedFn  func(ctx context.Context, text string) []float32
}

// RetrievalDefaults carries the configured top_n/rerank_top_m so tool
// handlers don't need direct config access.
type RetrievalDefaults struct {
	TopN       int
	RerankTopM int
}

// New builds an MCP server exposing the five Retrieval API operations
// over backend.
func New(backend *QueryBackend) *server.MCPServer {
	s := server.NewMCPServer("knowcode-mcp", "1.0.0", server.WithToolCapabilities(true))

	addRetrieveContextTool(s, backend)
	addSearchCodebaseTool(s, backend)
	addEntityContextTool(s, backend)
	addTraceCallsTool(s, backend)
	addImpactTool(s, backend)

	return s
}

func argString(args map[string]interface{}, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func argInt(args map[string]interface{}, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func argBool(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func addRetrieveContextTool(s *server.MCPServer, backend *QueryBackend) {
	tool := mcp.NewTool(
		"retrieve_context_for_query",
		mcp.WithDescription("Build a task-aware, token-budgeted context bundle for a natural-language query against the codebase."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question or task description")),
		mcp.WithString("task_type", mcp.Description("explain|debug|extend|review|locate|general|auto (default auto)")),
		mcp.WithNumber("max_tokens", mcp.Description("Token budget for the bundle (default 4000)")),
		mcp.WithNumber("limit_entities", mcp.Description("Maximum entities to retrieve (default 10)")),
		mcp.WithBoolean("expand_deps", mcp.Description("Admit one-hop callers/callees at reduced weight")),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}
		query, ok := args["query"].(string)
		if !ok || query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		taskType := model.TaskType(argString(args, "task_type", string(model.TaskAuto)))
		maxTokens := argInt(args, "max_tokens", 4000)
		limitEntities := argInt(args, "limit_entities", 10)
		expandDeps := argBool(args, "expand_deps", false)

		var queryVector []float32
		if backend.EmbedFn != nil {
			queryVector = backend.EmbedFn(ctx, query)
		}

		res, err := backend.Engine.Search(ctx, query, queryVector, search.Options{
			TaskType:      taskType,
			LimitEntities: limitEntities,
			ExpandDeps:    expandDeps,
			TopN:          backend.Retrieval.TopN,
			RerankTopM:    backend.Retrieval.RerankTopM,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}

		selected := make([]synth.SelectedEntity, len(res.Entities))
		for i, e := range res.Entities {
			selected[i] = synth.SelectedEntity{EntityID: e.EntityID, Score: e.Score}
		}
		evidence := make([]model.Evidence, len(res.Evidence))
		for i, ev := range res.Evidence {
			evidence[i] = model.Evidence{ChunkID: ev.ChunkID, EntityID: ev.EntityID, Score: ev.Score}
		}
		bundle := backend.Synth.Synthesize(synth.Request{
			Entities:  selected,
			Evidence:  evidence,
			Query:     query,
			TaskHint:  taskType,
			MaxTokens: maxTokens,
		})
		return jsonResult(bundle)
	})
}

func addSearchCodebaseTool(s *server.MCPServer, backend *QueryBackend) {
	tool := mcp.NewTool(
		"search_codebase",
		mcp.WithDescription("Find entities by short name or qualified-name substring, without scoring or synthesis."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Substring to match against entity names")),
		mcp.WithNumber("limit", mcp.Description("Maximum entities to return (default 20)")),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}
		pattern, ok := args["pattern"].(string)
		if !ok || pattern == "" {
			return mcp.NewToolResultError("pattern parameter is required"), nil
		}
		limit := argInt(args, "limit", 20)

		results := backend.Store.Search(pattern)
		if limit > 0 && len(results) > limit {
			results = results[:limit]
		}
		return jsonResult(results)
	})
}

func addEntityContextTool(s *server.MCPServer, backend *QueryBackend) {
	tool := mcp.NewTool(
		"get_entity_context",
		mcp.WithDescription("Build a context bundle anchored on one already-known entity id, instead of a free-text query."),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity id, as returned by search_codebase or retrieve_context_for_query")),
		mcp.WithString("task_type", mcp.Description("explain|debug|extend|review|locate|general|auto (default auto)")),
		mcp.WithNumber("max_tokens", mcp.Description("Token budget for the bundle (default 4000)")),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}
		entityID, ok := args["entity_id"].(string)
		if !ok || entityID == "" {
			return mcp.NewToolResultError("entity_id parameter is required"), nil
		}
		if _, ok := backend.Store.GetEntity(entityID); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown entity id %q", entityID)), nil
		}
		taskType := model.TaskType(argString(args, "task_type", string(model.TaskAuto)))
		maxTokens := argInt(args, "max_tokens", 4000)

		bundle := backend.Synth.Synthesize(synth.Request{
			Entities:  []synth.SelectedEntity{{EntityID: entityID, Score: 1}},
			TaskHint:  taskType,
			MaxTokens: maxTokens,
		})
		return jsonResult(bundle)
	})
}

func addTraceCallsTool(s *server.MCPServer, backend *QueryBackend) {
	tool := mcp.NewTool(
		"trace_calls",
		mcp.WithDescription("Breadth-first traversal of the call graph from an entity, in either direction."),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Starting entity id")),
		mcp.WithString("direction", mcp.Description("callers|callees (default callees)")),
		mcp.WithNumber("depth", mcp.Description("Maximum breadth-first depth (default 3)")),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}
		entityID, ok := args["entity_id"].(string)
		if !ok || entityID == "" {
			return mcp.NewToolResultError("entity_id parameter is required"), nil
		}
		direction := store.DirectionCallees
		if argString(args, "direction", "callees") == "callers" {
			direction = store.DirectionCallers
		}
		depth := argInt(args, "depth", 3)

		results := backend.Store.TraceCalls(entityID, direction, depth, 0)
		return jsonResult(results)
	})
}

func addImpactTool(s *server.MCPServer, backend *QueryBackend) {
	tool := mcp.NewTool(
		"get_impact",
		mcp.WithDescription("Direct and transitive dependents, affected files, and a risk score for a proposed change to an entity."),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity id to assess")),
		mcp.WithNumber("max_depth", mcp.Description("Maximum transitive-dependent depth (default 5)")),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}
		entityID, ok := args["entity_id"].(string)
		if !ok || entityID == "" {
			return mcp.NewToolResultError("entity_id parameter is required"), nil
		}
		maxDepth := argInt(args, "max_depth", 5)

		result := backend.Store.GetImpact(entityID, maxDepth)
		return jsonResult(result)
	})
}
