package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
	"github.com/metalake-io/insight-engine/pkg/models"
)

// LoadConfig reads a workflow definition from a YAML file and validates it.
func LoadConfig(path string) (*models.WorkflowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow config %s: %v: %w", path, err, apperrors.ErrConfiguration)
	}

	var cfg models.WorkflowConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse workflow config %s: %v: %w", path, err, apperrors.ErrConfiguration)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
