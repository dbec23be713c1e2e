package step

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepline/internal/domain"
)

type nopStep struct{ kind string }

func (s nopStep) Kind() string              { return s.kind }
func (s nopStep) Modality() domain.Modality { return domain.ModalityAny }
func (s nopStep) Idempotent() bool          { return true }
func (s nopStep) OrderSensitive() bool      { return true }
func (s nopStep) Apply(ctx context.Context, b *Batch) (*Batch, []RecordError, error) {
	return b, nil, nil
}

func factoryFor(kind string, modality domain.Modality, version int) Factory {
	return Factory{
		Kind:     kind,
		Modality: modality,
		Version:  version,
		New:      func(Params) (Step, error) { return nopStep{kind: kind}, nil },
	}
}

func TestRegistryRejectsDuplicateKey(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(factoryFor("trim", domain.ModalityText, 1)))

	err := reg.Register(factoryFor("trim", domain.ModalityText, 1))
	require.ErrorIs(t, err, domain.ErrRegistryConflict)

	// Same kind under a different modality or version is fine.
	require.NoError(t, reg.Register(factoryFor("trim", domain.ModalityTabular, 1)))
	require.NoError(t, reg.Register(factoryFor("trim", domain.ModalityText, 2)))
}

func TestRegistryResolveLatestVersion(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(factoryFor("scale", domain.ModalityTabular, 1)))
	require.NoError(t, reg.Register(factoryFor("scale", domain.ModalityTabular, 3)))
	require.NoError(t, reg.Register(factoryFor("scale", domain.ModalityTabular, 2)))

	f, err := reg.Resolve(domain.ModalityTabular, "scale", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Version)

	pinned, err := reg.Resolve(domain.ModalityTabular, "scale", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pinned.Version)

	_, err = reg.Resolve(domain.ModalityTabular, "scale", 9)
	require.ErrorIs(t, err, domain.ErrUnknownStep)
}

func TestRegistryResolveUnknownKind(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Resolve(domain.ModalityTabular, "foo", 0)
	require.ErrorIs(t, err, domain.ErrUnknownStep)
}

func TestRegistryResolveAnyModalityFallback(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(factoryFor("passthrough", domain.ModalityAny, 1)))

	f, err := reg.Resolve(domain.ModalityAudio, "passthrough", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ModalityAny, f.Modality)
}

func TestRegisterBuiltinsListsSorted(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))

	all := reg.List()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		ordered := prev.Modality < cur.Modality ||
			(prev.Modality == cur.Modality && prev.Kind <= cur.Kind)
		assert.True(t, ordered, "list not sorted at %d: %s/%s after %s/%s", i, cur.Modality, cur.Kind, prev.Modality, prev.Kind)
	}

	// Registering builtins twice must conflict, not silently replace.
	require.ErrorIs(t, RegisterBuiltins(reg), domain.ErrRegistryConflict)
}
