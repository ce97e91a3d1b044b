package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	collection string
	verbose    bool
	plain      bool
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "AI team task orchestrator",
	Long: `orchestrator runs a team of AI worker identities against a task board.

Each task is classified, checked against the learning rules, composed into a
prompt with project context and shared memory, and executed through the
configured backend (one-shot CLI, Anthropic API, or a pool of long-lived
sessions). Outcomes feed back into each agent's track record, and a planning
agent keeps the board moving after every task.

Configuration is read from ~/.config/ai-team-orchestrator/config.yaml with
project overrides in .orchestrator.yaml.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config + .orchestrator.yaml)")
	rootCmd.PersistentFlags().StringVar(&collection, "collection", "", "Board collection (default: orchestrator.default_collection)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr as well as the debug file")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable colors and the live TUI")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sprintCmd)
	rootCmd.AddCommand(standupCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(versionCmd)
}
