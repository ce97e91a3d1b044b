package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xtechdean/ai-team-orchestrator/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration after merging defaults, the user config
(~/.config/ai-team-orchestrator/config.yaml), the project .orchestrator.yaml and
environment variables. The API key is masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		displayAllConfig(cfg)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	for _, line := range configLines(cfg) {
		fmt.Println(line)
	}
}

func configLines(cfg *config.Config) []string {
	key, src := config.ResolveAPIKey(cfg)
	return []string{
		fmt.Sprintf("anthropic.api_key: %s (%s)", config.MaskAPIKey(key), src),
		fmt.Sprintf("anthropic.use_bedrock: %t", cfg.Anthropic.UseBedrock),
		fmt.Sprintf("anthropic.aws_region: %s", cfg.Anthropic.AWSRegion),
		fmt.Sprintf("backend.mode: %s", cfg.Backend.Mode),
		fmt.Sprintf("backend.claude_path: %s", cfg.Backend.ClaudePath),
		fmt.Sprintf("backend.model: %s", cfg.Backend.Model),
		fmt.Sprintf("backend.max_output_tokens: %d", cfg.Backend.MaxOutputTokens),
		fmt.Sprintf("backend.timeout: %s", cfg.Backend.Timeout),
		fmt.Sprintf("pool.size: %d", cfg.Pool.Size),
		fmt.Sprintf("pool.ready_timeout: %s", cfg.Pool.ReadyTimeout),
		fmt.Sprintf("pool.respawn_backoff: %s", cfg.Pool.RespawnBackoff),
		fmt.Sprintf("pool.completion_marker: %q", cfg.Pool.CompletionMarker),
		fmt.Sprintf("pool.min_output_length: %d", cfg.Pool.MinOutputLength),
		fmt.Sprintf("orchestrator.default_collection: %s", cfg.Orchestrator.DefaultCollection),
		fmt.Sprintf("orchestrator.planning_agent: %s", cfg.Orchestrator.PlanningAgent),
		fmt.Sprintf("orchestrator.terminal_agents: %s", strings.Join(cfg.Orchestrator.TerminalAgents, ", ")),
		fmt.Sprintf("orchestrator.follow_up_delay: %s", cfg.Orchestrator.FollowUpDelay),
		fmt.Sprintf("orchestrator.project_files: %s", strings.Join(cfg.Orchestrator.ProjectFiles, ", ")),
		fmt.Sprintf("orchestrator.error_log_size: %d", cfg.Orchestrator.ErrorLogSize),
		fmt.Sprintf("orchestrator.agents_dir: %s", cfg.Orchestrator.AgentsDir),
		fmt.Sprintf("orchestrator.skills_dir: %s", cfg.Orchestrator.SkillsDir),
		fmt.Sprintf("orchestrator.rules_file: %s", cfg.Orchestrator.RulesFile),
		fmt.Sprintf("storage.driver: %s", cfg.Storage.Driver),
		fmt.Sprintf("storage.path: %s", cfg.Storage.Path),
		fmt.Sprintf("logging.debug_file: %s", cfg.Logging.DebugFile),
	}
}
