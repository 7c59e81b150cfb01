package cli

import (
	"fmt"
	"os"

	"github.com/open330/oac/internal/agent"
	"github.com/open330/oac/internal/agent/claude"
	"github.com/open330/oac/internal/agent/codex"
	"github.com/open330/oac/internal/agent/generic"
	"github.com/open330/oac/internal/config"
)

// loadAndValidateConfig loads path and prints every validation error found.
func loadAndValidateConfig(path string) (*config.RunConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return nil, err
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		}
		return nil, fmt.Errorf("%d validation error(s)", len(errs))
	}

	return cfg, nil
}

// buildRegistry registers every built-in adapter factory and wires each
// configured provider's aliases, so execengine.New's round-robin list can
// resolve either a canonical id or one of its aliases.
func buildRegistry(cfg *config.RunConfig) (*agent.Registry, error) {
	reg := agent.NewRegistry()
	reg.Register("claude-code", claude.New)
	reg.Register("codex", codex.New)
	reg.Register("generic", generic.New)

	for _, p := range cfg.Providers {
		if !reg.Exists(p.ID) {
			// Unknown provider id: treat it as a generic CLI-driven adapter so
			// operators are not limited to the two named providers.
			reg.Register(p.ID, generic.New)
		}
		for _, alias := range p.Aliases {
			if err := reg.Alias(alias, p.ID); err != nil {
				return nil, fmt.Errorf("registering alias %q: %w", alias, err)
			}
		}
	}

	return reg, nil
}
