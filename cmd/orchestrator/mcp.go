package main

import (
	"github.com/spf13/cobra"

	"github.com/0xtechdean/ai-team-orchestrator/internal/mcpserver"
	"github.com/0xtechdean/ai-team-orchestrator/internal/version"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the orchestrator as MCP tools on stdio",
	Long: `Serve run_task, sprint_check, standup, list_rules, list_patterns and
performance as MCP tools over stdio, plus pool_stats when backend.mode is
pool. Planner follow-ups are enabled. Logs go
to the debug file because stdout carries the protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{needBackend: true, followUps: true, stderr: true})
		if err != nil {
			return err
		}
		defer a.close()
		a.logEvents()

		s := mcpserver.New(a.orch, version.Get())
		if a.pool != nil {
			mcpserver.RegisterPool(s, a.pool)
		}
		return mcpserver.ServeStdio(s)
	},
}
