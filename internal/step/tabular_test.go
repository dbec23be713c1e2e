package step

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepline/internal/domain"
)

func tabularBatch(columns []string, rows ...[]string) *Batch {
	b := NewBatch(columns)
	for i, row := range rows {
		rec := Record{Index: int64(i), Values: make(map[string]string, len(columns))}
		for j, col := range columns {
			rec.Values[col] = row[j]
		}
		b.Records = append(b.Records, rec)
	}
	return b
}

func TestImputeMissingMean(t *testing.T) {
	s, err := newImputeMissing(Params{"strategy": "mean"})
	require.NoError(t, err)

	in := tabularBatch([]string{"x", "label"},
		[]string{"1", "a"},
		[]string{"", "b"},
		[]string{"3", "a"},
	)
	out, recErrs, err := s.Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, recErrs)
	assert.Equal(t, "2", out.Records[1].Values["x"])
	// Non-numeric column untouched.
	assert.Equal(t, "b", out.Records[1].Values["label"])
	// Input batch not mutated.
	assert.Equal(t, "", in.Records[1].Values["x"])
}

func TestImputeMissingConstantAndMostFrequent(t *testing.T) {
	in := tabularBatch([]string{"c"},
		[]string{"red"},
		[]string{""},
		[]string{"red"},
		[]string{"blue"},
	)

	constant, err := newImputeMissing(Params{"strategy": "constant", "fill_value": "n/a", "columns": []any{"c"}})
	require.NoError(t, err)
	out, _, err := constant.Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "n/a", out.Records[1].Values["c"])

	frequent, err := newImputeMissing(Params{"strategy": "most_frequent", "columns": []any{"c"}})
	require.NoError(t, err)
	out, _, err = frequent.Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "red", out.Records[1].Values["c"])
}

func TestImputeMissingRejectsBadStrategy(t *testing.T) {
	_, err := newImputeMissing(Params{"strategy": "mode"})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "strategy", verr.Param)
}

func TestScaleNumericMinMax(t *testing.T) {
	s, err := newScaleNumeric(Params{"scaler": "minmax", "columns": []any{"x"}})
	require.NoError(t, err)

	in := tabularBatch([]string{"x"},
		[]string{"10"},
		[]string{"20"},
		[]string{"30"},
	)
	out, recErrs, err := s.Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, recErrs)
	assert.Equal(t, "0", out.Records[0].Values["x"])
	assert.Equal(t, "0.5", out.Records[1].Values["x"])
	assert.Equal(t, "1", out.Records[2].Values["x"])
}

func TestScaleNumericReportsBadRecords(t *testing.T) {
	s, err := newScaleNumeric(Params{"scaler": "standard", "columns": []any{"x"}})
	require.NoError(t, err)

	in := tabularBatch([]string{"x"},
		[]string{"1"},
		[]string{"oops"},
		[]string{"3"},
	)
	out, recErrs, err := s.Apply(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, recErrs, 1)
	assert.Equal(t, int64(1), recErrs[0].Index)
	assert.Equal(t, 2, out.Len())
}

func TestEncodeLabelsDeterministicCodes(t *testing.T) {
	s, err := newEncodeLabels(Params{"columns": []any{"color"}})
	require.NoError(t, err)

	in := tabularBatch([]string{"color"},
		[]string{"red"},
		[]string{"blue"},
		[]string{"green"},
		[]string{"red"},
	)
	out, _, err := s.Apply(context.Background(), in)
	require.NoError(t, err)
	// Codes follow sorted distinct order: blue=0, green=1, red=2.
	assert.Equal(t, "2", out.Records[0].Values["color"])
	assert.Equal(t, "0", out.Records[1].Values["color"])
	assert.Equal(t, "1", out.Records[2].Values["color"])
	assert.Equal(t, "2", out.Records[3].Values["color"])
}

func TestSelectColumnsProjectsAndAborts(t *testing.T) {
	s, err := newSelectColumns(Params{"columns": []any{"a"}})
	require.NoError(t, err)

	in := tabularBatch([]string{"a", "b"}, []string{"1", "2"})
	out, _, err := s.Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.Columns)
	_, present := out.Records[0].Values["b"]
	assert.False(t, present)

	missing, err := newSelectColumns(Params{"columns": []any{"nope"}})
	require.NoError(t, err)
	_, _, err = missing.Apply(context.Background(), in)
	require.Error(t, err)
	assert.True(t, IsFatal(err), "missing column must abort the run")
}

func TestSelectColumnsRequiresColumns(t *testing.T) {
	_, err := newSelectColumns(Params{})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestDropMissingAndDedupe(t *testing.T) {
	drop, err := newDropMissing(Params{})
	require.NoError(t, err)
	in := tabularBatch([]string{"a", "b"},
		[]string{"1", "x"},
		[]string{"", "y"},
		[]string{"3", "z"},
	)
	out, _, err := drop.Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())

	dedupe, err := newDedupeRows(Params{"keys": []any{"a"}})
	require.NoError(t, err)
	dupes := tabularBatch([]string{"a", "b"},
		[]string{"1", "first"},
		[]string{"1", "second"},
		[]string{"2", "third"},
	)
	out, _, err = dedupe.Apply(context.Background(), dupes)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "first", out.Records[0].Values["b"])
}

func TestStepsRejectUnknownParameters(t *testing.T) {
	_, err := newDropMissing(Params{"colums": []any{"a"}})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = newScaleNumeric(Params{"scaler": "minmax", "seed": 1})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}
