package alarm

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// modelConfig is the YAML shape for a custom alarm model. Any omitted field
// keeps its default.
type modelConfig struct {
	Severity                map[string]int `yaml:"severity,omitempty"`
	NormalLevel             *int           `yaml:"normal_level,omitempty"`
	DefaultNormalSeverity   string         `yaml:"default_normal_severity,omitempty"`
	DefaultPreviousSeverity string         `yaml:"default_previous_severity,omitempty"`
	DefaultStatus           string         `yaml:"default_status,omitempty"`
}

// LoadModelFromFile loads an alarm model from a YAML file.
func LoadModelFromFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alarm model file: %w", err)
	}
	defer f.Close()

	return LoadModel(f)
}

// LoadModel loads an alarm model from a reader, applying defaults for any
// field not present in the document.
func LoadModel(r io.Reader) (*Model, error) {
	var cfg modelConfig
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse alarm model YAML: %w", err)
	}

	model := NewModel()
	if len(cfg.Severity) > 0 {
		model.Severity = cfg.Severity
	}
	if cfg.NormalLevel != nil {
		model.NormalLevel = *cfg.NormalLevel
	}
	if cfg.DefaultNormalSeverity != "" {
		model.DefaultNormalSeverity = cfg.DefaultNormalSeverity
	}
	if cfg.DefaultPreviousSeverity != "" {
		model.DefaultPreviousSeverity = cfg.DefaultPreviousSeverity
	}
	if cfg.DefaultStatus != "" {
		model.DefaultStatus = cfg.DefaultStatus
	}

	if err := model.validate(); err != nil {
		return nil, err
	}
	return model, nil
}

func (m *Model) validate() error {
	if len(m.Severity) == 0 {
		return fmt.Errorf("alarm model requires at least one severity")
	}
	if !m.IsValidSeverity(m.DefaultNormalSeverity) {
		return fmt.Errorf("default normal severity %q is not in the severity map", m.DefaultNormalSeverity)
	}
	if !m.IsValidSeverity(m.DefaultPreviousSeverity) {
		return fmt.Errorf("default previous severity %q is not in the severity map", m.DefaultPreviousSeverity)
	}
	if m.Level(m.DefaultNormalSeverity) != m.NormalLevel {
		return fmt.Errorf("default normal severity %q is not at the normal level %d", m.DefaultNormalSeverity, m.NormalLevel)
	}
	return nil
}
