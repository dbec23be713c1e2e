package step

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepline/internal/domain"
)

func textBatch(lines ...string) *Batch {
	b := NewBatch([]string{"text"})
	for i, line := range lines {
		b.Records = append(b.Records, Record{Index: int64(i), Values: map[string]string{"text": line}})
	}
	return b
}

func TestNormalizeText(t *testing.T) {
	s, err := newNormalizeText(Params{"collapse_whitespace": true})
	require.NoError(t, err)

	out, _, err := s.Apply(context.Background(), textBatch("  Hello   WORLD \t"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Records[0].Values["text"])
}

func TestFilterLengthBounds(t *testing.T) {
	s, err := newFilterLength(Params{"min_chars": 3, "max_chars": 5})
	require.NoError(t, err)

	out, _, err := s.Apply(context.Background(), textBatch("ab", "abc", "abcdef"))
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "abc", out.Records[0].Values["text"])
}

func TestFilterLengthValidation(t *testing.T) {
	_, err := newFilterLength(Params{"min_chars": 10, "max_chars": 5})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = newFilterLength(Params{"min_chars": -1})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestShuffleAugmentRequiresSeed(t *testing.T) {
	_, err := newShuffleAugment(Params{})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "seed", verr.Param)
}

func TestShuffleAugmentReproducible(t *testing.T) {
	params := Params{"seed": 42}
	first, err := newShuffleAugment(params)
	require.NoError(t, err)
	second, err := newShuffleAugment(params)
	require.NoError(t, err)

	in := textBatch("the quick brown fox", "jumps over the lazy dog")
	out1, _, err := first.Apply(context.Background(), in)
	require.NoError(t, err)
	out2, _, err := second.Apply(context.Background(), in)
	require.NoError(t, err)

	require.Equal(t, out1.Len(), out2.Len())
	assert.Equal(t, 4, out1.Len(), "each record plus one augmented copy")
	for i := range out1.Records {
		assert.Equal(t, out1.Records[i].Values["text"], out2.Records[i].Values["text"])
	}

	assert.False(t, first.Idempotent())
}
