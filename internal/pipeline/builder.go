// Package pipeline assembles and validates ordered step sequences.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"prepline/internal/domain"
	"prepline/internal/step"
)

// Builder validates step sequences against the registry and freezes them
// into executable pipelines.
type Builder struct {
	registry *step.Registry
}

// NewBuilder returns a builder backed by reg.
func NewBuilder(reg *step.Registry) *Builder {
	return &Builder{registry: reg}
}

// Build validates the spec sequence and returns a frozen pipeline. Checks run
// in order: non-empty sequence, registry resolution, modality compatibility,
// parameter validation. The first failure is returned; no pipeline identifier
// is ever issued for an invalid sequence.
func (b *Builder) Build(name string, taskType domain.TaskType, modality domain.Modality, specs []domain.StepSpec) (*domain.Pipeline, error) {
	if !taskType.Valid() || taskType == domain.TaskAuto {
		return nil, fmt.Errorf("build pipeline: task type %q is not a concrete task", taskType)
	}
	if !modality.Valid() {
		return nil, fmt.Errorf("build pipeline: invalid modality %q", modality)
	}
	if len(specs) == 0 {
		return nil, &domain.ValidationError{Err: domain.ErrEmptyPipeline}
	}

	ordered := make([]domain.StepSpec, len(specs))
	for i, spec := range specs {
		factory, err := b.validateSpec(modality, spec, i)
		if err != nil {
			return nil, err
		}
		clone := spec.Clone()
		clone.Position = i
		if clone.Modality == "" {
			clone.Modality = modality
		}
		// Pin the resolved version so later registrations never change a
		// frozen pipeline's behavior.
		clone.Version = factory.Version
		ordered[i] = clone
	}

	now := time.Now().UTC()
	return &domain.Pipeline{
		ID:        uuid.NewString(),
		Name:      name,
		TaskType:  taskType,
		Modality:  modality,
		Steps:     ordered,
		Frozen:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// BuildTemplate is Build for reusable templates.
func (b *Builder) BuildTemplate(name string, taskType domain.TaskType, modality domain.Modality, specs []domain.StepSpec) (*domain.Pipeline, error) {
	p, err := b.Build(name, taskType, modality, specs)
	if err != nil {
		return nil, err
	}
	p.IsTemplate = true
	return p, nil
}

func (b *Builder) validateSpec(pipelineModality domain.Modality, spec domain.StepSpec, position int) (step.Factory, error) {
	specModality := spec.Modality
	if specModality == "" {
		specModality = pipelineModality
	}

	factory, err := b.registry.Resolve(specModality, spec.Kind, spec.Version)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			verr.Position = position
		}
		return step.Factory{}, err
	}

	if !factory.Modality.Compatible(pipelineModality) {
		return step.Factory{}, &domain.ValidationError{
			Err:      domain.ErrModalityMismatch,
			StepKind: spec.Kind,
			Position: position,
			Detail:   fmt.Sprintf("step modality %q is incompatible with pipeline modality %q", factory.Modality, pipelineModality),
		}
	}

	if err := factory.Validate(step.Params(spec.Params)); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			verr.StepKind = spec.Kind
			verr.Position = position
			return step.Factory{}, verr
		}
		return step.Factory{}, err
	}
	return factory, nil
}
