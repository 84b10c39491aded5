// Command forgecore runs a single agentic turn against whichever provider
// pkg/registry resolves for the requested model, streaming text to stdout
// and gating any tool calls through pkg/policy. --log-dir records the turn
// as a JSONL transcript via harness.WithLogger; --replay feeds one of those
// transcripts back through harness.NewMockFromLog so a prior run can be
// re-inspected without calling a live provider.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"

	anthropicbackend "forgecore/pkg/backend/anthropic"

	"forgecore/pkg/agent"
	"forgecore/pkg/auth"
	"forgecore/pkg/chat"
	"forgecore/pkg/config"
	"forgecore/pkg/harness"
	"forgecore/pkg/obslog"
	"forgecore/pkg/policy"
	"forgecore/pkg/registry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg := config.Load()
	auth.SetRefreshConfig(cfg.Auth.RefreshURL, cfg.Auth.ClientID, cfg.Auth.Scope)

	fs := flag.NewFlagSet("forgecore", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var prompt, model, instructions, policyPath, catalogPath, logDir, replayPath string
	var verbose, saveModel bool

	fs.StringVar(&prompt, "prompt", "", "User prompt")
	fs.StringVar(&model, "model", cfg.Exec.Model, "Model name (resolved against the provider registry)")
	fs.StringVar(&instructions, "instructions", cfg.Exec.Instructions, "System instructions")
	fs.StringVar(&policyPath, "policy", cfg.Agent.PolicyPath, "Policy rule file path")
	fs.StringVar(&catalogPath, "catalog", cfg.Agent.CatalogPath, "User-local provider catalog override (JSON)")
	fs.StringVar(&logDir, "log-dir", cfg.Log.Dir, "Write one JSONL transcript per turn to this directory")
	fs.StringVar(&replayPath, "replay", "", "Replay a JSONL transcript from --log-dir instead of calling a live provider")
	fs.BoolVar(&verbose, "verbose", false, "Log transport requests/responses to stderr")
	fs.BoolVar(&saveModel, "save-model", false, "Persist --model as exec.model in the config file")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return errors.New("--prompt is required")
	}
	if strings.TrimSpace(model) == "" {
		return errors.New("--model is required (flag, config exec.model, or FORGE_EXEC_MODEL)")
	}
	if saveModel {
		if err := config.SetValue(config.DefaultPath(), model, "exec", "model"); err != nil {
			return fmt.Errorf("save default model: %w", err)
		}
	}
	if cfg.Exec.AppendSystem != "" {
		instructions += "\n\n" + cfg.Exec.AppendSystem
	}

	cat, err := registry.LoadDefault(catalogPath)
	if err != nil {
		return fmt.Errorf("load provider catalog: %w", err)
	}
	reg := registry.New(cat)

	var zlogPtr *zerolog.Logger
	if verbose || strings.EqualFold(cfg.Log.Level, "debug") {
		zlog := obslog.New(obslog.Config{Pretty: true, Level: zerolog.DebugLevel})
		zlogPtr = &zlog
	}

	var h harness.Harness
	if strings.TrimSpace(replayPath) != "" {
		logData, err := harness.LoadLog(replayPath)
		if err != nil {
			return fmt.Errorf("load replay transcript: %w", err)
		}
		h = harness.NewMockFromLog(logData)
	} else {
		credentials := chat.EnvCredentials
		if openaiSource := loadOpenAICredentialSourceIfPresent(); openaiSource != nil {
			credentials = chat.OpenAICredentials(openaiSource, credentials)
		}
		if claudeStore := loadClaudeTokenStoreIfPresent(); claudeStore != nil {
			credentials = chat.OAuthCredentials(claudeStore, credentials)
		}

		h = chat.New(chat.HarnessConfig{
			Registry:     reg,
			Credentials:  credentials,
			DefaultModel: model,
			UserAgent:    cfg.Client.UserAgent,
			Log:          zlogPtr,
		})
		if strings.TrimSpace(logDir) != "" {
			h = harness.WithLogger(h, harness.LoggerConfig{Dir: logDir, Redact: true})
		}
	}

	policyEngine := policy.NewEngine(policyPath)
	runtime := agent.New(agent.Config{
		Harness:          h,
		Policy:           policyEngine,
		Limit:            cfg.Agent.ToolErrorLimit,
		MaxTurns:         cfg.Agent.MaxTurns,
		CompactThreshold: cfg.Agent.CompactThreshold,
		RetainMessages:   cfg.Agent.RetainMessages,
		Classify:         classifyShellAndFile,
		Confirm:          confirmByStdin,
		OnEvent:          stepPrinter(verbose),
	})

	turn := &harness.Turn{
		Model:        model,
		Instructions: instructions,
		Messages:     []harness.Message{{Role: harness.RoleUser, Content: prompt}},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if cfg.Exec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Exec.Timeout)
		defer cancel()
	}

	result, err := runtime.RunTurn(ctx, turn, noopExecutor{})
	if err != nil {
		return err
	}
	fmt.Println(result.FinalText)
	return nil
}

// stepPrinter renders RunToolLoop's PlanEvent/PreambleEvent stream to
// stderr when verbose is set, so a --verbose run shows each tool call's
// progress as it happens rather than only the final answer on stdout.
func stepPrinter(verbose bool) func(harness.Event) error {
	if !verbose {
		return nil
	}
	return func(ev harness.Event) error {
		switch ev.Kind {
		case harness.EventPreamble:
			if ev.Preamble != nil {
				fmt.Fprintln(os.Stderr, "...", ev.Preamble.Text)
			}
		case harness.EventPlanUpdate:
			if ev.Plan != nil {
				fmt.Fprintf(os.Stderr, "[%d] %s: %s\n", ev.Plan.StepIndex, ev.Plan.Title, ev.Plan.Status)
			}
		}
		return nil
	}
}

// loadClaudeTokenStoreIfPresent probes the default Claude credentials path;
// a missing file just means no Claude subscription login is available, so
// ANTHROPIC_API_KEY is used instead.
func loadClaudeTokenStoreIfPresent() *anthropicbackend.TokenStore {
	if _, err := os.Stat(anthropicbackend.DefaultCredentialsPath); err != nil {
		return nil
	}
	return anthropicbackend.NewTokenStore(anthropicbackend.DefaultCredentialsPath)
}

// loadOpenAICredentialSourceIfPresent mirrors the FORGE_HOME auth.json
// convention; a missing or unreadable file just means no ChatGPT
// subscription login is available, so OPENAI_API_KEY is used instead.
func loadOpenAICredentialSourceIfPresent() *auth.CredentialSource {
	path, err := auth.DefaultPath()
	if err != nil {
		return nil
	}
	store, err := auth.Load(path)
	if err != nil {
		return nil
	}
	return &auth.CredentialSource{Store: store, AllowNetworkRefresh: true}
}

// noopExecutor runs no tools; forgecore's minimal CLI is read-only chat
// until a real ToolExecutor (shell, file I/O, fetch) is wired in by a
// caller embedding pkg/agent directly.
type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, call harness.ToolCallEvent) (*harness.ToolResultEvent, error) {
	return &harness.ToolResultEvent{CallID: call.CallID, Output: "no tool executor configured", IsError: true}, nil
}

func (noopExecutor) Available() []harness.ToolSpec { return nil }

func classifyShellAndFile(call harness.ToolCallEvent) policy.Operation {
	switch call.Name {
	case "shell", "execute":
		var args struct {
			Command string `json:"command"`
			CWD     string `json:"cwd"`
		}
		_ = json.Unmarshal([]byte(call.Arguments), &args)
		return policy.Operation{Kind: policy.OpExecute, Command: args.Command, CWD: args.CWD, Message: args.Command}
	case "read_file":
		var args struct{ Path string `json:"path"` }
		_ = json.Unmarshal([]byte(call.Arguments), &args)
		return policy.Operation{Kind: policy.OpRead, Path: args.Path, Message: args.Path}
	case "write_file", "apply_patch":
		var args struct{ Path string `json:"path"` }
		_ = json.Unmarshal([]byte(call.Arguments), &args)
		return policy.Operation{Kind: policy.OpWrite, Path: args.Path, Message: args.Path}
	case "fetch", "web_search":
		var args struct{ URL string `json:"url"` }
		_ = json.Unmarshal([]byte(call.Arguments), &args)
		return policy.Operation{Kind: policy.OpFetch, URL: args.URL, Message: args.URL}
	default:
		return policy.Operation{Kind: policy.OpExecute, Command: call.Name, Message: call.Name}
	}
}

func confirmByStdin(ctx context.Context, op policy.Operation) policy.Answer {
	fmt.Fprintf(os.Stderr, "confirm %s %q? [y/N/a=always] ", op.Kind, op.Message)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return policy.Accept
	case "a", "always":
		return policy.AcceptAndRemember
	default:
		return policy.Reject
	}
}
