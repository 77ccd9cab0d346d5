package experiments

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/promptlens/pkg/models"
)

// Config defines the experiments known to a process.
type Config struct {
	Experiments []models.ExperimentConfig `yaml:"experiments" json:"experiments"`
}

// Validate checks every experiment and rejects duplicate ids.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Experiments))
	for i, exp := range c.Experiments {
		id := strings.TrimSpace(exp.ID)
		if id == "" {
			return fmt.Errorf("experiments[%d]: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("experiments[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		if err := exp.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the experiment with the given id.
func (c Config) Find(id string) (models.ExperimentConfig, bool) {
	id = strings.TrimSpace(id)
	for _, exp := range c.Experiments {
		if exp.ID == id {
			return exp, true
		}
	}
	return models.ExperimentConfig{}, false
}

// Selection is the outcome of one variant selection.
type Selection struct {
	Index   int
	Variant string
}
