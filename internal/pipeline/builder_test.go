package pipeline

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepline/internal/domain"
	"prepline/internal/step"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	reg := step.NewRegistry()
	require.NoError(t, step.RegisterBuiltins(reg))
	return NewBuilder(reg)
}

func TestBuildFreezesValidPipeline(t *testing.T) {
	b := newTestBuilder(t)

	p, err := b.Build("tabular-prep", domain.TaskClassification, domain.ModalityTabular, []domain.StepSpec{
		{Kind: "impute_missing", Params: map[string]any{"strategy": "median"}},
		{Kind: "scale_numeric", Params: map[string]any{"scaler": "minmax"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.Frozen)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, 0, p.Steps[0].Position)
	assert.Equal(t, 1, p.Steps[1].Position)
	assert.Equal(t, domain.ModalityTabular, p.Steps[0].Modality)
}

func TestBuildUnknownStepIssuesNoID(t *testing.T) {
	b := newTestBuilder(t)

	p, err := b.Build("bad", domain.TaskClassification, domain.ModalityTabular, []domain.StepSpec{
		{Kind: "foo"},
	})
	require.ErrorIs(t, err, domain.ErrUnknownStep)
	assert.Nil(t, p)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unknown_step", verr.Code())
	assert.Equal(t, "foo", verr.StepKind)
}

func TestBuildModalityMismatch(t *testing.T) {
	b := newTestBuilder(t)

	_, err := b.Build("mismatched", domain.TaskClassification, domain.ModalityTabular, []domain.StepSpec{
		{Kind: "normalize_text", Modality: domain.ModalityText},
	})
	require.ErrorIs(t, err, domain.ErrModalityMismatch)
}

func TestBuildInvalidParameterNeverFreezes(t *testing.T) {
	b := newTestBuilder(t)

	p, err := b.Build("bad-params", domain.TaskTextGeneration, domain.ModalityText, []domain.StepSpec{
		{Kind: "shuffle_augment"}, // missing required seed
	})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
	assert.Nil(t, p)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "shuffle_augment", verr.StepKind)
	assert.Equal(t, "seed", verr.Param)
	assert.Equal(t, 0, verr.Position)
}

func TestBuildEmptyPipeline(t *testing.T) {
	b := newTestBuilder(t)

	_, err := b.Build("empty", domain.TaskClassification, domain.ModalityTabular, nil)
	require.ErrorIs(t, err, domain.ErrEmptyPipeline)
}

func TestBuildRejectsAutoTask(t *testing.T) {
	b := newTestBuilder(t)

	_, err := b.Build("auto", domain.TaskAuto, domain.ModalityTabular, []domain.StepSpec{
		{Kind: "drop_missing"},
	})
	require.Error(t, err)
}

func TestTemplateInstantiateCopiesSpecs(t *testing.T) {
	b := newTestBuilder(t)

	tmpl, err := b.BuildTemplate("reusable", domain.TaskClassification, domain.ModalityTabular, []domain.StepSpec{
		{Kind: "impute_missing", Params: map[string]any{"strategy": "mean"}},
	})
	require.NoError(t, err)
	assert.True(t, tmpl.IsTemplate)

	steps := tmpl.Instantiate()
	steps[0].Params["strategy"] = "median"
	assert.Equal(t, "mean", tmpl.Steps[0].Params["strategy"], "template must not share mutable state")
}

func TestLoadTemplateFromYAML(t *testing.T) {
	b := newTestBuilder(t)

	doc := `
name: basic-tabular
task_type: classification
modality: tabular
steps:
  - kind: drop_missing
  - kind: scale_numeric
    params:
      scaler: minmax
`
	p, err := b.LoadTemplate(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "basic-tabular", p.Name)
	assert.True(t, p.IsTemplate)

	want := []domain.StepSpec{
		{Kind: "drop_missing", Modality: domain.ModalityTabular, Version: 1, Position: 0},
		{Kind: "scale_numeric", Modality: domain.ModalityTabular, Version: 1, Position: 1, Params: map[string]any{"scaler": "minmax"}},
	}
	if diff := cmp.Diff(want, p.Steps); diff != "" {
		t.Errorf("frozen steps mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTemplateRejectsUnknownFields(t *testing.T) {
	b := newTestBuilder(t)

	doc := `
name: typo
task_type: classification
modality: tabular
stepz: []
`
	_, err := b.LoadTemplate(strings.NewReader(doc))
	require.Error(t, err)
}
