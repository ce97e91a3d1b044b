// Package mcpserver exposes the orchestrator's operations as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/0xtechdean/ai-team-orchestrator/internal/learning"
	"github.com/0xtechdean/ai-team-orchestrator/internal/orchestrator"
	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// Orchestrator is the subset of the engine the tools call into.
type Orchestrator interface {
	RunTask(ctx context.Context, agentID, description, taskContext string) (string, error)
	RunSprintCheck(ctx context.Context) (string, error)
	RunDailyStandup(ctx context.Context) (string, error)
	Rules() []learning.Rule
	Patterns() []learning.PatternRecord
	Performance(agentID string) (models.Performance, bool)
	Suggestions(ctx context.Context, agentID string) []learning.TriggeredRule
}

var _ Orchestrator = (*orchestrator.Orchestrator)(nil)

// RunTaskArgs are the arguments of run_task.
type RunTaskArgs struct {
	AgentID     string `json:"agent_id" jsonschema:"required,description=Worker identity to run the task as (e.g. backend)"`
	Description string `json:"description" jsonschema:"required,description=What the agent should do"`
	Context     string `json:"context,omitempty" jsonschema:"description=Extra context appended to the prompt"`
}

// AgentArgs select one agent.
type AgentArgs struct {
	AgentID string `json:"agent_id" jsonschema:"required,description=Worker identity id"`
}

// NoArgs is the schema of tools without parameters.
type NoArgs struct{}

// New builds an MCP server with every orchestrator tool registered.
func New(orch Orchestrator, version string) *server.MCPServer {
	s := server.NewMCPServer("ai-team-orchestrator", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	Register(s, orch)
	return s
}

// Register adds the orchestrator tools to s.
func Register(s *server.MCPServer, orch Orchestrator) {
	s.AddTool(mcp.NewTool("run_task",
		mcp.WithDescription("Run a task as one worker identity. Returns the agent's output."),
		mcp.WithInputSchema[RunTaskArgs](),
	), runTaskHandler(orch))

	s.AddTool(mcp.NewTool("sprint_check",
		mcp.WithDescription("Run the highest-priority ready task on the board for its owner."),
		mcp.WithInputSchema[NoArgs](),
	), sprintCheckHandler(orch))

	s.AddTool(mcp.NewTool("standup",
		mcp.WithDescription("Run the daily standup for the planning agent with the board as context."),
		mcp.WithInputSchema[NoArgs](),
	), standupHandler(orch))

	s.AddTool(mcp.NewTool("list_rules",
		mcp.WithDescription("List the learning rules the engine evaluates before each task."),
		mcp.WithInputSchema[NoArgs](),
	), listRulesHandler(orch))

	s.AddTool(mcp.NewTool("list_patterns",
		mcp.WithDescription("List recurring task patterns with occurrence counts and examples."),
		mcp.WithInputSchema[NoArgs](),
	), listPatternsHandler(orch))

	s.AddTool(mcp.NewTool("performance",
		mcp.WithDescription("Show an agent's performance record and the rules it currently triggers."),
		mcp.WithInputSchema[AgentArgs](),
	), performanceHandler(orch))
}

// PoolInspector is the worker pool surface behind pool_stats.
type PoolInspector interface {
	Stats() orchestrator.PoolStats
	Sessions() []orchestrator.PooledSession
}

var _ PoolInspector = (*orchestrator.Pool)(nil)

// RegisterPool adds the pool_stats tool. Only pool-backed servers call it.
func RegisterPool(s *server.MCPServer, pool PoolInspector) {
	s.AddTool(mcp.NewTool("pool_stats",
		mcp.WithDescription("Show worker pool size, live and busy sessions, and queue length."),
		mcp.WithInputSchema[NoArgs](),
	), poolStatsHandler(pool))
}

// ServeStdio serves s on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	log.Printf("[mcp] serving tools on stdio")
	return server.ServeStdio(s)
}

func runTaskHandler(orch Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args RunTaskArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if args.AgentID == "" || args.Description == "" {
			return mcp.NewToolResultError("agent_id and description are required"), nil
		}
		out, err := orch.RunTask(ctx, args.AgentID, args.Description, args.Context)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func sprintCheckHandler(orch Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := orch.RunSprintCheck(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func standupHandler(orch Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := orch.RunDailyStandup(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func listRulesHandler(orch Orchestrator) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(orch.Rules())
	}
}

func listPatternsHandler(orch Orchestrator) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(orch.Patterns())
	}
}

// performanceReport is the payload of the performance tool.
type performanceReport struct {
	AgentID     string                   `json:"agent_id"`
	Performance models.Performance       `json:"performance"`
	SuccessRate float64                  `json:"success_rate"`
	Suggestions []learning.TriggeredRule `json:"suggestions"`
}

func performanceHandler(orch Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args AgentArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		perf, ok := orch.Performance(args.AgentID)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown agent %q", args.AgentID)), nil
		}
		return jsonResult(performanceReport{
			AgentID:     args.AgentID,
			Performance: perf,
			SuccessRate: perf.SuccessRate(),
			Suggestions: orch.Suggestions(ctx, args.AgentID),
		})
	}
}

// sessionView is one pooled session in the pool_stats payload.
type sessionView struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Busy      bool      `json:"busy"`
	CreatedAt time.Time `json:"created_at"`
}

// poolReport is the payload of the pool_stats tool.
type poolReport struct {
	orchestrator.PoolStats
	SessionList []sessionView `json:"session_list"`
}

func poolStatsHandler(pool PoolInspector) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report := poolReport{PoolStats: pool.Stats(), SessionList: []sessionView{}}
		for _, ps := range pool.Sessions() {
			report.SessionList = append(report.SessionList, sessionView{ID: ps.ID, AgentID: ps.AgentID, Busy: ps.Busy, CreatedAt: ps.CreatedAt})
		}
		return jsonResult(report)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
