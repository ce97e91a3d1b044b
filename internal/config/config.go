// Package config handles configuration loading and management for the orchestrator.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// AppName names the XDG directories.
	AppName = "ai-team-orchestrator"
	// ProjectConfigName is the per-project override file.
	ProjectConfigName = ".orchestrator.yaml"
	// StateDirName is the project-local working directory.
	StateDirName = ".orchestrator"
)

// Config holds all configuration for the orchestrator.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Pool         PoolConfig         `mapstructure:"pool"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// Backend modes.
const (
	BackendCLI  = "cli"
	BackendAPI  = "api"
	BackendPool = "pool"
)

// BackendConfig selects and tunes the execution backend.
type BackendConfig struct {
	// Mode is one of cli, api or pool.
	Mode            string        `mapstructure:"mode"`
	ClaudePath      string        `mapstructure:"claude_path"`
	Model           string        `mapstructure:"model"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// PoolConfig tunes the persistent session pool.
type PoolConfig struct {
	Size             int           `mapstructure:"size"`
	ReadyTimeout     time.Duration `mapstructure:"ready_timeout"`
	RespawnBackoff   time.Duration `mapstructure:"respawn_backoff"`
	CompletionMarker string        `mapstructure:"completion_marker"`
	MinOutputLength  int           `mapstructure:"min_output_length"`
	// Command overrides the session binary; defaults to backend.claude_path.
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// OrchestratorConfig holds task lifecycle settings.
type OrchestratorConfig struct {
	DefaultCollection string        `mapstructure:"default_collection"`
	PlanningAgent     string        `mapstructure:"planning_agent"`
	TerminalAgents    []string      `mapstructure:"terminal_agents"`
	FollowUpDelay     time.Duration `mapstructure:"follow_up_delay"`
	ProjectFiles      []string      `mapstructure:"project_files"`
	ErrorLogSize      int           `mapstructure:"error_log_size"`
	AgentsDir         string        `mapstructure:"agents_dir"`
	SkillsDir         string        `mapstructure:"skills_dir"`
	RulesFile         string        `mapstructure:"rules_file"`
}

// StorageConfig selects the SQLite driver and database file.
type StorageConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// LoggingConfig holds log destinations.
type LoggingConfig struct {
	DebugFile string `mapstructure:"debug_file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, ORCH_*)
// 2. Project config (.orchestrator.yaml in current directory or parent)
// 3. User config (~/.config/ai-team-orchestrator/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

var envReplacer = strings.NewReplacer(".", "_")

// bindEnv maps ORCH_SECTION_KEY variables onto config keys.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("ORCH")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("backend.mode", d.Backend.Mode)
	v.SetDefault("backend.claude_path", d.Backend.ClaudePath)
	v.SetDefault("backend.model", d.Backend.Model)
	v.SetDefault("backend.max_output_tokens", d.Backend.MaxOutputTokens)
	v.SetDefault("backend.timeout", d.Backend.Timeout.String())

	v.SetDefault("pool.size", d.Pool.Size)
	v.SetDefault("pool.ready_timeout", d.Pool.ReadyTimeout.String())
	v.SetDefault("pool.respawn_backoff", d.Pool.RespawnBackoff.String())
	v.SetDefault("pool.completion_marker", d.Pool.CompletionMarker)
	v.SetDefault("pool.min_output_length", d.Pool.MinOutputLength)
	v.SetDefault("pool.command", "")
	v.SetDefault("pool.args", []string{})

	v.SetDefault("orchestrator.default_collection", d.Orchestrator.DefaultCollection)
	v.SetDefault("orchestrator.planning_agent", d.Orchestrator.PlanningAgent)
	v.SetDefault("orchestrator.terminal_agents", d.Orchestrator.TerminalAgents)
	v.SetDefault("orchestrator.follow_up_delay", d.Orchestrator.FollowUpDelay.String())
	v.SetDefault("orchestrator.project_files", d.Orchestrator.ProjectFiles)
	v.SetDefault("orchestrator.error_log_size", d.Orchestrator.ErrorLogSize)
	v.SetDefault("orchestrator.agents_dir", d.Orchestrator.AgentsDir)
	v.SetDefault("orchestrator.skills_dir", d.Orchestrator.SkillsDir)
	v.SetDefault("orchestrator.rules_file", d.Orchestrator.RulesFile)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("logging.debug_file", d.Logging.DebugFile)
}

// getUserConfigDir returns the XDG config directory for the orchestrator.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, AppName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", AppName)
	}
	return filepath.Join(home, ".config", AppName)
}

// findProjectConfig searches for .orchestrator.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Mode:            BackendCLI,
			ClaudePath:      "claude",
			Model:           "claude-sonnet-4-20250514",
			MaxOutputTokens: 8192,
			Timeout:         10 * time.Minute,
		},
		Pool: PoolConfig{
			Size:             3,
			ReadyTimeout:     30 * time.Second,
			RespawnBackoff:   5 * time.Second,
			CompletionMarker: "\n> ",
			MinOutputLength:  50,
		},
		Orchestrator: OrchestratorConfig{
			DefaultCollection: "default",
			PlanningAgent:     "pm",
			TerminalAgents:    []string{"pm", "reviewer"},
			FollowUpDelay:     2 * time.Second,
			ProjectFiles:      []string{"CLAUDE.md", "README.md", filepath.Join(StateDirName, "decisions.md")},
			ErrorLogSize:      100,
			AgentsDir:         filepath.Join(StateDirName, "agents"),
			SkillsDir:         filepath.Join(StateDirName, "skills"),
			RulesFile:         filepath.Join(StateDirName, "rules.yaml"),
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   filepath.Join(StateDirName, "state.db"),
		},
		Logging: LoggingConfig{
			DebugFile: filepath.Join(StateDirName, "logs", "orchestrator-debug.log"),
		},
	}
}

// Validate checks values that would otherwise fail late at wiring time.
func (c *Config) Validate() error {
	switch c.Backend.Mode {
	case BackendCLI, BackendAPI, BackendPool:
	default:
		return fmt.Errorf("backend.mode %q: must be one of cli, api, pool", c.Backend.Mode)
	}
	switch c.Storage.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver %q: must be sqlite or sqlite3", c.Storage.Driver)
	}
	if c.Pool.Size < 1 {
		return fmt.Errorf("pool.size must be at least 1, got %d", c.Pool.Size)
	}
	if c.Orchestrator.ErrorLogSize < 1 {
		return fmt.Errorf("orchestrator.error_log_size must be at least 1, got %d", c.Orchestrator.ErrorLogSize)
	}
	return nil
}

// SessionCommand returns the binary and arguments used to spawn pool sessions.
func (c *Config) SessionCommand() (string, []string) {
	cmd := c.Pool.Command
	if cmd == "" {
		cmd = c.Backend.ClaudePath
	}
	return cmd, c.Pool.Args
}
