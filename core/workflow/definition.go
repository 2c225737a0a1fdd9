package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseDefinition decodes a YAML workflow definition and validates its
// structure (id present, at least one step, unique step ids, referential
// integrity, acyclicity).
func ParseDefinition(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}
	if wf.ID == "" {
		return nil, fmt.Errorf("%w: workflow id required", ErrInvalidWorkflow)
	}
	for _, s := range wf.Steps {
		if s == nil || s.ID == "" {
			return nil, fmt.Errorf("%w: step id required", ErrInvalidWorkflow)
		}
	}
	if err := ValidateWorkflow(&wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// LoadDefinitionFile reads and parses a YAML workflow definition from disk.
func LoadDefinitionFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definition: %w", err)
	}
	return ParseDefinition(data)
}
