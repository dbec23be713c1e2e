package pipeline

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"prepline/internal/domain"
)

// TemplateFile is the YAML document describing a reusable pipeline template.
type TemplateFile struct {
	Name     string            `yaml:"name"`
	TaskType domain.TaskType   `yaml:"task_type"`
	Modality domain.Modality   `yaml:"modality"`
	Steps    []domain.StepSpec `yaml:"steps"`
}

// LoadTemplate parses a YAML template document and validates it into a
// frozen, reusable pipeline.
func (b *Builder) LoadTemplate(r io.Reader) (*domain.Pipeline, error) {
	var doc TemplateFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("parse template: name is required")
	}
	return b.BuildTemplate(doc.Name, doc.TaskType, doc.Modality, doc.Steps)
}
