// Package policy evaluates file/command/URL operations against a YAML rule
// set and can interactively escalate ambiguous cases, persisting new rules
// on "Accept and Remember". Rules are first-match-wins globs; confirmation
// offers exactly three choices (Accept / Reject / Accept and Remember).
package policy

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/match"
	"gopkg.in/yaml.v3"
)

// Permission is the verdict a rule (or the user) assigns to an operation.
type Permission string

const (
	Allow   Permission = "Allow"
	Deny    Permission = "Deny"
	Confirm Permission = "Confirm"
)

// OperationKind discriminates PermissionOperation.
type OperationKind int

const (
	OpRead OperationKind = iota
	OpWrite
	OpExecute
	OpFetch
)

// String returns the lowercase operation name, the same vocabulary
// ruleKeyFor uses for RuleKind.
func (k OperationKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpExecute:
		return "execute"
	case OpFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// Operation is an ephemeral, per-request permission check subject.
type Operation struct {
	Kind    OperationKind
	Path    string // Read, Write
	Command string // Execute
	URL     string // Fetch
	CWD     string
	Message string // human-readable description shown on Confirm
}

// RuleKind discriminates Rule.
type RuleKind int

const (
	RuleRead RuleKind = iota
	RuleWrite
	RuleExecute
	RuleFetch
)

// Rule is one glob-matchable permission rule, scoped to an optional dir.
type Rule struct {
	Kind    RuleKind
	Pattern string // file glob, host*, or command pattern depending on Kind
	Dir     string
}

// Policy pairs a Permission verdict with the Rule it applies to.
type Policy struct {
	Permission Permission
	Rule       Rule
}

// Config is an ordered list of policies; first match wins.
type Config struct {
	Policies []Policy
}

// MarshalYAML renders Config in the documented wire shape:
//
//	- permission: Allow|Deny|Confirm
//	  rule: { read|write|execute|fetch: "<pattern>", dir?: "<path>" }
func (c Config) MarshalYAML() (any, error) {
	out := make([]map[string]any, 0, len(c.Policies))
	for _, p := range c.Policies {
		ruleMap := map[string]any{}
		key, _ := ruleKeyFor(p.Rule.Kind)
		ruleMap[key] = p.Rule.Pattern
		if p.Rule.Dir != "" {
			ruleMap["dir"] = p.Rule.Dir
		}
		out = append(out, map[string]any{
			"permission": string(p.Permission),
			"rule":       ruleMap,
		})
	}
	return out, nil
}

// UnmarshalYAML parses the documented wire shape back into Config.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw []struct {
		Permission string            `yaml:"permission"`
		Rule       map[string]string `yaml:"rule"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	policies := make([]Policy, 0, len(raw))
	for _, r := range raw {
		rule, err := ruleFromMap(r.Rule)
		if err != nil {
			return err
		}
		policies = append(policies, Policy{Permission: Permission(r.Permission), Rule: rule})
	}
	c.Policies = policies
	return nil
}

func ruleKeyFor(kind RuleKind) (string, error) {
	switch kind {
	case RuleRead:
		return "read", nil
	case RuleWrite:
		return "write", nil
	case RuleExecute:
		return "execute", nil
	case RuleFetch:
		return "fetch", nil
	default:
		return "", fmt.Errorf("policy: unknown rule kind %d", kind)
	}
}

func ruleFromMap(m map[string]string) (Rule, error) {
	dir := m["dir"]
	if p, ok := m["read"]; ok {
		return Rule{Kind: RuleRead, Pattern: p, Dir: dir}, nil
	}
	if p, ok := m["write"]; ok {
		return Rule{Kind: RuleWrite, Pattern: p, Dir: dir}, nil
	}
	if p, ok := m["execute"]; ok {
		return Rule{Kind: RuleExecute, Pattern: p, Dir: dir}, nil
	}
	if p, ok := m["fetch"]; ok {
		return Rule{Kind: RuleFetch, Pattern: p, Dir: dir}, nil
	}
	return Rule{}, fmt.Errorf("policy: rule has none of read/write/execute/fetch")
}

// DefaultConfig returns the embedded baseline ruleset loaded on first run.
func DefaultConfig() Config {
	return Config{Policies: []Policy{
		{Permission: Deny, Rule: Rule{Kind: RuleExecute, Pattern: "rm -rf*"}},
		{Permission: Confirm, Rule: Rule{Kind: RuleExecute, Pattern: "*"}},
		{Permission: Confirm, Rule: Rule{Kind: RuleWrite, Pattern: "*"}},
		{Permission: Allow, Rule: Rule{Kind: RuleRead, Pattern: "*"}},
		{Permission: Confirm, Rule: Rule{Kind: RuleFetch, Pattern: "*"}},
	}}
}

// Engine loads, evaluates, and (on confirmation) mutates a policy file.
// The mutex guards the local read-modify-write path; a concurrent process
// appending to the same file is tolerated because every evaluation re-reads
// the file rather than caching rules.
type Engine struct {
	mu   sync.Mutex
	path string
}

// NewEngine builds an Engine bound to the given policy file path.
func NewEngine(path string) *Engine { return &Engine{path: path} }

// Load reads the policy file, writing embedded defaults first if absent.
func (e *Engine) Load() (Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadNoLock()
}

func (e *Engine) loadNoLock() (Config, error) {
	buf, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if werr := e.writeNoLock(cfg); werr != nil {
			return Config{}, werr
		}
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read policy file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse policy file: %w", err)
	}
	return cfg, nil
}

func (e *Engine) writeNoLock(cfg Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode policy file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return err
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("write policy temp file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

// Evaluate walks the config in order; the first matching rule's Permission
// is the verdict. Returns Deny if nothing matches (fail closed).
func (e *Engine) Evaluate(op Operation) (Permission, error) {
	cfg, err := e.Load()
	if err != nil {
		return Deny, err
	}
	return evaluate(cfg, op), nil
}

func evaluate(cfg Config, op Operation) Permission {
	for _, p := range cfg.Policies {
		if ruleMatches(p.Rule, op) {
			return p.Permission
		}
	}
	return Deny
}

func ruleMatches(r Rule, op Operation) bool {
	if r.Dir != "" && op.CWD != "" && !strings.HasPrefix(op.CWD, r.Dir) {
		return false
	}
	switch r.Kind {
	case RuleRead:
		return op.Kind == OpRead && match.Match(extScopedPattern(op.Path, r.Pattern), r.Pattern)
	case RuleWrite:
		return op.Kind == OpWrite && match.Match(extScopedPattern(op.Path, r.Pattern), r.Pattern)
	case RuleExecute:
		return op.Kind == OpExecute && match.Match(op.Command, r.Pattern)
	case RuleFetch:
		return op.Kind == OpFetch && match.Match(hostOf(op.URL), r.Pattern)
	default:
		return false
	}
}

// extScopedPattern returns the candidate string matched against a file
// rule's pattern: file rules are extension-scoped (e.g. "*.go"), so the
// candidate is the path's "*.<ext>" form when the rule pattern looks like
// an extension glob, falling back to the raw path otherwise.
func extScopedPattern(path, pattern string) string {
	if strings.HasPrefix(pattern, "*.") {
		ext := filepath.Ext(path)
		if ext == "" {
			return ""
		}
		return "*" + ext
	}
	return path
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// Answer is the user's response to a Confirm verdict.
type Answer int

const (
	Accept Answer = iota
	Reject
	AcceptAndRemember
)

// Resolve handles a Confirm verdict given the user's Answer. On
// AcceptAndRemember it synthesizes a rule for op and appends it to the
// policy file atomically.
func (e *Engine) Resolve(op Operation, answer Answer) (allowed bool, err error) {
	switch answer {
	case Accept:
		return true, nil
	case Reject:
		return false, nil
	case AcceptAndRemember:
		e.mu.Lock()
		defer e.mu.Unlock()
		cfg, err := e.loadNoLock()
		if err != nil {
			return false, err
		}
		rule, ok := synthesizeRule(op)
		if !ok {
			return true, nil // nothing to remember (e.g. no extension); still honor this call
		}
		cfg.Policies = append(cfg.Policies, Policy{Permission: Allow, Rule: rule})
		if err := e.writeNoLock(cfg); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

// synthesizeRule builds the rule remembered for op: extension-scoped for
// file operations, host-scoped for fetches, command-prefix for executes.
func synthesizeRule(op Operation) (Rule, bool) {
	switch op.Kind {
	case OpRead, OpWrite:
		ext := filepath.Ext(op.Path)
		if ext == "" {
			return Rule{}, false
		}
		kind := RuleRead
		if op.Kind == OpWrite {
			kind = RuleWrite
		}
		return Rule{Kind: kind, Pattern: "*" + ext}, true
	case OpFetch:
		if host := hostOf(op.URL); host != op.URL {
			return Rule{Kind: RuleFetch, Pattern: host + "*"}, true
		}
		return Rule{Kind: RuleFetch, Pattern: op.URL}, true
	case OpExecute:
		fields := strings.Fields(op.Command)
		switch len(fields) {
		case 0:
			return Rule{}, false
		case 1:
			return Rule{Kind: RuleExecute, Pattern: fields[0] + "*"}, true
		default:
			return Rule{Kind: RuleExecute, Pattern: fields[0] + " " + fields[1] + "*"}, true
		}
	default:
		return Rule{}, false
	}
}
