// Package plan runs YAML scripts of ledger operations against a router.
package plan

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan is a named set of identities and the steps to run with them.
type Plan struct {
	// Names maps labels to base58 keys. An empty value gets a fresh key.
	Names map[string]string `yaml:"names"`
	Steps []Step            `yaml:"steps"`
}

// Step is one operation. Save stores the address the operation produced
// under a new name for later steps.
type Step struct {
	Op   string            `yaml:"op"`
	As   string            `yaml:"as"`
	Args map[string]string `yaml:"args"`
	Save string            `yaml:"save"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Parse(data)
}

// Parse decodes a plan document.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	for i, step := range p.Steps {
		op := strings.TrimSpace(step.Op)
		if op == "" {
			return nil, fmt.Errorf("step %d: op is required", i+1)
		}
		if _, ok := operations[op]; !ok {
			return nil, fmt.Errorf("step %d: unknown op %q", i+1, op)
		}
		p.Steps[i].Op = op
	}
	return &p, nil
}
