// Package config loads forgecore's YAML configuration: execution defaults
// (model, instructions, tool choice), HTTP client knobs, OAuth refresh
// parameters, and the agent runtime's limits (tool-error budget, turn cap,
// compaction thresholds). Values layer in order: built-in defaults, then
// the config file, then FORGE_* environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Exec   ExecConfig   `yaml:"exec"`
	Client ClientConfig `yaml:"client"`
	Auth   AuthConfig   `yaml:"auth"`
	Agent  AgentConfig  `yaml:"agent"`
	Log    LogConfig    `yaml:"log"`
}

type ExecConfig struct {
	Model        string        `yaml:"model"`
	Instructions string        `yaml:"instructions"`
	AppendSystem string        `yaml:"append_system_prompt"`
	ToolChoice   string        `yaml:"tool_choice"`
	Timeout      time.Duration `yaml:"timeout"`
}

type ClientConfig struct {
	UserAgent  string        `yaml:"user_agent"`
	RetryMax   int           `yaml:"retry_max"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type AuthConfig struct {
	Path       string `yaml:"path"`
	RefreshURL string `yaml:"refresh_url"`
	ClientID   string `yaml:"client_id"`
	Scope      string `yaml:"scope"`
}

// AgentConfig holds the runtime limits pkg/agent consumes.
type AgentConfig struct {
	// ToolErrorLimit is the per-tool consecutive-failure budget before the
	// turn hard-stops.
	ToolErrorLimit int `yaml:"tool_error_limit"`
	MaxTurns       int `yaml:"max_turns"`
	// CompactThreshold is the approximate token count above which the
	// conversation is compacted before the next provider call; 0 disables.
	CompactThreshold int    `yaml:"compact_threshold"`
	RetainMessages   int    `yaml:"retain_messages"`
	PolicyPath       string `yaml:"policy_path"`
	CatalogPath      string `yaml:"catalog_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

func DefaultConfig() Config {
	return Config{
		Exec: ExecConfig{
			Instructions: "You are a helpful assistant.",
			ToolChoice:   "auto",
			Timeout:      90 * time.Second,
		},
		Client: ClientConfig{
			UserAgent:  "forgecore/0.1",
			RetryMax:   3,
			RetryDelay: 300 * time.Millisecond,
		},
		Auth: AuthConfig{
			Path:       "",
			RefreshURL: "https://auth.openai.com/oauth/token",
			ClientID:   "app_EMoamEEZ73f0CkXaXp7hrann",
			Scope:      "openid profile email",
		},
		Agent: AgentConfig{
			ToolErrorLimit:   3,
			MaxTurns:         8,
			CompactThreshold: 0,
			RetainMessages:   6,
			PolicyPath:       defaultPolicyPath(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultPolicyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".forge/policy.yaml"
	}
	return filepath.Join(home, ".forge", "policy.yaml")
}

func DefaultPath() string {
	if v := strings.TrimSpace(os.Getenv("FORGE_CONFIG")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "forge", "config.yaml")
}

func Load() Config {
	return LoadFrom(DefaultPath())
}

func LoadFrom(path string) Config {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		if buf, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(buf, &cfg)
		}
	}
	ApplyEnv(&cfg)
	return cfg
}

func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("FORGE_EXEC_MODEL")); v != "" {
		cfg.Exec.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_EXEC_INSTRUCTIONS")); v != "" {
		cfg.Exec.Instructions = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_EXEC_APPEND_SYSTEM_PROMPT")); v != "" {
		cfg.Exec.AppendSystem = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_EXEC_TOOL_CHOICE")); v != "" {
		cfg.Exec.ToolChoice = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_EXEC_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Exec.Timeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_USER_AGENT")); v != "" {
		cfg.Client.UserAgent = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_RETRY_MAX")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Client.RetryMax = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_RETRY_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.RetryDelay = d
		}
	}

	if v := strings.TrimSpace(os.Getenv("FORGE_AUTH_PATH")); v != "" {
		cfg.Auth.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_AUTH_REFRESH_URL")); v != "" {
		cfg.Auth.RefreshURL = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_AUTH_CLIENT_ID")); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_AUTH_SCOPE")); v != "" {
		cfg.Auth.Scope = v
	}

	if v := strings.TrimSpace(os.Getenv("FORGE_TOOL_ERROR_LIMIT")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Agent.ToolErrorLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_MAX_TURNS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Agent.MaxTurns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_COMPACT_THRESHOLD")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Agent.CompactThreshold = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_RETAIN_MESSAGES")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Agent.RetainMessages = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_POLICY_PATH")); v != "" {
		cfg.Agent.PolicyPath = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_CATALOG_PATH")); v != "" {
		cfg.Agent.CatalogPath = v
	}

	if v := strings.TrimSpace(os.Getenv("FORGE_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_LOG_DIR")); v != "" {
		cfg.Log.Dir = v
	}
}

func parseInt(val string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(val))
}
