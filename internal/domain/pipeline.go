package domain

import "time"

// StepSpec is one configured step inside a pipeline: which step kind to run,
// at what position, with which parameters. Specs are mutable while a pipeline
// is being authored and frozen together with it on submission.
type StepSpec struct {
	Kind     string         `json:"kind" yaml:"kind"`
	Modality Modality       `json:"modality" yaml:"modality"`
	Version  int            `json:"version,omitempty" yaml:"version,omitempty"` // 0 resolves to the latest registered
	Position int            `json:"position" yaml:"position"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Clone returns a deep copy of the spec so template instantiation never
// shares mutable parameter maps.
func (s StepSpec) Clone() StepSpec {
	out := s
	if s.Params != nil {
		out.Params = make(map[string]any, len(s.Params))
		for k, v := range s.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Pipeline is a validated, ordered sequence of step specs bound to a task
// type. Only frozen pipelines may be submitted for execution.
type Pipeline struct {
	ID         string
	Name       string
	TaskType   TaskType
	Modality   Modality
	Steps      []StepSpec
	Frozen     bool
	IsTemplate bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Instantiate copies the pipeline's step specs into a fresh slice. Templates
// are shared read-only; jobs built from them must never alias their specs.
func (p *Pipeline) Instantiate() []StepSpec {
	steps := make([]StepSpec, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = s.Clone()
	}
	return steps
}
