// Package config loads and validates the run configuration: providers,
// engine settings, budget, and the work-item source.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/open330/oac/internal/plan"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Provider describes one configured agent provider.
type Provider struct {
	ID             string   `yaml:"id"`
	Command        string   `yaml:"command,omitempty"`
	Args           []string `yaml:"args,omitempty"`
	ContextWindow  int      `yaml:"context_window,omitempty"`
	Aliases        []string `yaml:"aliases,omitempty"`
}

// ToFactoryConfig converts a Provider into the generic config map every
// agent factory (claude/codex/generic) accepts.
func (p Provider) ToFactoryConfig() map[string]interface{} {
	cfg := map[string]interface{}{}
	if p.Command != "" {
		cfg["command"] = p.Command
	}
	if len(p.Args) > 0 {
		args := make([]interface{}, len(p.Args))
		for i, a := range p.Args {
			args[i] = a
		}
		cfg["args"] = args
	}
	if p.ContextWindow > 0 {
		cfg["context_ceiling"] = p.ContextWindow
	}
	cfg["id"] = p.ID
	return cfg
}

// EngineSettings mirrors execengine.Config's construction invariants.
type EngineSettings struct {
	Concurrency        int      `yaml:"concurrency,omitempty"`
	MaxAttempts        int      `yaml:"max_attempts,omitempty"`
	Timeout            Duration `yaml:"timeout,omitempty"`
	DefaultTokenBudget int64    `yaml:"default_token_budget,omitempty"`
	BranchPrefix       string   `yaml:"branch_prefix,omitempty"`
	BaseBranch         string   `yaml:"base_branch,omitempty"`
}

// unlimitedBudget is the YAML literal recognized as plan.Unlimited.
const unlimitedBudget = "unlimited"

// Budget decodes either a literal integer token total or the "unlimited"
// sentinel string into plan.Unlimited.
type Budget struct {
	Total int64
}

func (b *Budget) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		if v != unlimitedBudget {
			return fmt.Errorf("budget: unrecognized string value %q (expected %q or an integer)", v, unlimitedBudget)
		}
		b.Total = plan.Unlimited
	case int:
		b.Total = int64(v)
	case int64:
		b.Total = v
	default:
		return fmt.Errorf("budget: unsupported value %v (%T)", raw, raw)
	}
	return nil
}

// Source points at the YAML-file-backed work-item source standing in for
// live lint/TODO/test-gap/issue scanners.
type Source struct {
	Path string `yaml:"path"`
}

// GitHub optionally enables the Duplicate Guard's GitHub-backed open-PR
// check. Empty Owner/Repo disables it — callers should fall back to a
// no-op PRLister.
type GitHub struct {
	Owner    string `yaml:"owner,omitempty"`
	Repo     string `yaml:"repo,omitempty"`
	TagLabel string `yaml:"tag_label,omitempty"`
}

// RunConfig is the YAML-decoded top-level document the CLI loads:
// providers, engine settings, budget, and the work-item source.
type RunConfig struct {
	Providers []Provider `yaml:"providers"`
	Engine    EngineSettings `yaml:"engine"`
	Budget    Budget     `yaml:"budget"`
	Source    Source     `yaml:"source"`
	GitHub    GitHub     `yaml:"github,omitempty"`
}

// applyDefaults fills in every optional field's zero value with its
// documented default after unmarshal.
func (cfg *RunConfig) applyDefaults() {
	if cfg.Engine.Concurrency == 0 {
		cfg.Engine.Concurrency = 2
	}
	if cfg.Engine.MaxAttempts == 0 {
		cfg.Engine.MaxAttempts = 2
	}
	if cfg.Engine.Timeout == 0 {
		cfg.Engine.Timeout = Duration(300 * time.Second)
	}
	if cfg.Engine.DefaultTokenBudget == 0 {
		cfg.Engine.DefaultTokenBudget = 50000
	}
	if cfg.Engine.BranchPrefix == "" {
		cfg.Engine.BranchPrefix = "oac"
	}
	if cfg.Engine.BaseBranch == "" {
		cfg.Engine.BaseBranch = "main"
	}
	if cfg.Budget.Total == 0 {
		cfg.Budget.Total = plan.Unlimited
	}
	if cfg.GitHub.TagLabel == "" {
		cfg.GitHub.TagLabel = "[oac]"
	}
}

// Load reads and parses a RunConfig from path.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks cfg for internal consistency, accumulating every problem
// found instead of stopping at the first one.
func Validate(cfg *RunConfig) []error {
	var errs []error

	if len(cfg.Providers) == 0 {
		errs = append(errs, fmt.Errorf("providers: at least one provider is required"))
	}

	seen := make(map[string]bool)
	for i, p := range cfg.Providers {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: id is required", i))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
		for _, alias := range p.Aliases {
			if seen[alias] {
				errs = append(errs, fmt.Errorf("providers[%d]: alias %q collides with another provider or alias id", i, alias))
			}
			seen[alias] = true
		}
	}

	if cfg.Engine.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("engine.concurrency must be >= 1"))
	}
	if cfg.Engine.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("engine.max_attempts must be >= 1"))
	}
	if cfg.Engine.Timeout.Duration() < time.Millisecond {
		errs = append(errs, fmt.Errorf("engine.timeout must be >= 1ms"))
	}
	if cfg.Engine.DefaultTokenBudget < 1 {
		errs = append(errs, fmt.Errorf("engine.default_token_budget must be >= 1"))
	}

	if cfg.Budget.Total < 0 {
		errs = append(errs, fmt.Errorf("budget: total must be >= 0 or %q", unlimitedBudget))
	}

	if cfg.Source.Path == "" {
		errs = append(errs, fmt.Errorf("source.path is required"))
	}

	hasGitHub := cfg.GitHub.Owner != "" || cfg.GitHub.Repo != ""
	if hasGitHub && (cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "") {
		errs = append(errs, fmt.Errorf("github: both owner and repo must be set together"))
	}

	return errs
}

// ProviderIDs returns the canonical ordered list of provider IDs, the shape
// execengine.New's agentIDs parameter expects.
func (cfg *RunConfig) ProviderIDs() []string {
	ids := make([]string, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		ids = append(ids, p.ID)
	}
	return ids
}

// FactoryConfigs builds the id -> factory-config map execengine.New's
// agentCfg parameter expects.
func (cfg *RunConfig) FactoryConfigs() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(cfg.Providers))
	for _, p := range cfg.Providers {
		out[p.ID] = p.ToFactoryConfig()
	}
	return out
}
