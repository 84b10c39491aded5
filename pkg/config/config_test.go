package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Exec.Instructions == "" {
		t.Error("Exec.Instructions should have a default")
	}
	if cfg.Exec.ToolChoice != "auto" {
		t.Errorf("Exec.ToolChoice = %q, want %q", cfg.Exec.ToolChoice, "auto")
	}
	if cfg.Exec.Timeout != 90*time.Second {
		t.Errorf("Exec.Timeout = %v, want 90s", cfg.Exec.Timeout)
	}
	if cfg.Client.RetryMax != 3 {
		t.Errorf("Client.RetryMax = %d, want 3", cfg.Client.RetryMax)
	}
	if cfg.Agent.ToolErrorLimit != 3 {
		t.Errorf("Agent.ToolErrorLimit = %d, want 3", cfg.Agent.ToolErrorLimit)
	}
	if cfg.Agent.MaxTurns != 8 {
		t.Errorf("Agent.MaxTurns = %d, want 8", cfg.Agent.MaxTurns)
	}
	if !strings.HasSuffix(cfg.Agent.PolicyPath, filepath.Join(".forge", "policy.yaml")) {
		t.Errorf("Agent.PolicyPath = %q, want a .forge/policy.yaml path", cfg.Agent.PolicyPath)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestDefaultPathHonorsEnvOverride(t *testing.T) {
	t.Setenv("FORGE_CONFIG", "/tmp/custom-forge.yaml")
	if got := DefaultPath(); got != "/tmp/custom-forge.yaml" {
		t.Errorf("DefaultPath() = %q, want env override", got)
	}
}

func TestDefaultPathUnderHome(t *testing.T) {
	t.Setenv("FORGE_CONFIG", "")
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	expected := filepath.Join(tmpHome, ".config", "forge", "config.yaml")
	if got := DefaultPath(); got != expected {
		t.Errorf("DefaultPath() = %q, want %q", got, expected)
	}
}

func TestLoadFromMissingFileKeepsDefaults(t *testing.T) {
	cfg := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if cfg.Exec.ToolChoice != "auto" {
		t.Errorf("missing file should keep defaults, got ToolChoice=%q", cfg.Exec.ToolChoice)
	}
}

func TestLoadFromOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
exec:
  model: claude-sonnet-4-5
  timeout: 30s
agent:
  tool_error_limit: 5
  compact_threshold: 40000
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadFrom(path)
	if cfg.Exec.Model != "claude-sonnet-4-5" {
		t.Errorf("Exec.Model = %q", cfg.Exec.Model)
	}
	if cfg.Exec.Timeout != 30*time.Second {
		t.Errorf("Exec.Timeout = %v, want 30s", cfg.Exec.Timeout)
	}
	if cfg.Agent.ToolErrorLimit != 5 {
		t.Errorf("Agent.ToolErrorLimit = %d, want 5", cfg.Agent.ToolErrorLimit)
	}
	if cfg.Agent.CompactThreshold != 40000 {
		t.Errorf("Agent.CompactThreshold = %d, want 40000", cfg.Agent.CompactThreshold)
	}
	// Untouched sections keep their defaults.
	if cfg.Client.RetryMax != 3 {
		t.Errorf("Client.RetryMax = %d, want default 3", cfg.Client.RetryMax)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("FORGE_EXEC_MODEL", "gemini-2.5-pro")
	t.Setenv("FORGE_TOOL_ERROR_LIMIT", "7")
	t.Setenv("FORGE_RETRY_DELAY", "2s")
	t.Setenv("FORGE_POLICY_PATH", "/etc/forge/policy.yaml")

	cfg := DefaultConfig()
	ApplyEnv(&cfg)

	if cfg.Exec.Model != "gemini-2.5-pro" {
		t.Errorf("Exec.Model = %q", cfg.Exec.Model)
	}
	if cfg.Agent.ToolErrorLimit != 7 {
		t.Errorf("Agent.ToolErrorLimit = %d", cfg.Agent.ToolErrorLimit)
	}
	if cfg.Client.RetryDelay != 2*time.Second {
		t.Errorf("Client.RetryDelay = %v", cfg.Client.RetryDelay)
	}
	if cfg.Agent.PolicyPath != "/etc/forge/policy.yaml" {
		t.Errorf("Agent.PolicyPath = %q", cfg.Agent.PolicyPath)
	}
}

func TestApplyEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("FORGE_MAX_TURNS", "not-a-number")
	cfg := DefaultConfig()
	ApplyEnv(&cfg)
	if cfg.Agent.MaxTurns != 8 {
		t.Errorf("malformed env should keep default, got %d", cfg.Agent.MaxTurns)
	}
}

func TestSetValueUpdatesExistingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `# forgecore config
exec:
  model: old-model # the default model
agent:
  max_turns: 8
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := SetValue(path, "new-model", "exec", "model"); err != nil {
		t.Fatal(err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "new-model") {
		t.Errorf("expected new-model in output:\n%s", out)
	}
	if !strings.Contains(string(out), "# forgecore config") {
		t.Errorf("expected file comment preserved:\n%s", out)
	}

	cfg := LoadFrom(path)
	if cfg.Exec.Model != "new-model" {
		t.Errorf("Exec.Model = %q after SetValue", cfg.Exec.Model)
	}
	if cfg.Agent.MaxTurns != 8 {
		t.Errorf("Agent.MaxTurns = %d, other keys should survive", cfg.Agent.MaxTurns)
	}
}

func TestSetValueCreatesMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := SetValue(path, "debug", "log", "level"); err != nil {
		t.Fatal(err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]map[string]string
	if err := yaml.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("output is not valid yaml: %v\n%s", err, out)
	}
	if parsed["log"]["level"] != "debug" {
		t.Errorf("parsed = %v", parsed)
	}
}
