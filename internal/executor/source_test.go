package executor

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepline/internal/domain"
)

func newArtifact(modality domain.Modality, contentType string) *domain.Artifact {
	return &domain.Artifact{ID: "a", StorageKey: "k", Modality: modality, ContentType: contentType}
}

func TestCSVSourceBatches(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("a,b\n1,2\n3,4\n5,6\n"))
	src, err := newSource(newArtifact(domain.ModalityTabular, "text/csv"), rc)
	require.NoError(t, err)
	defer src.Close()

	batch, recErrs, err := src.Next(2)
	require.NoError(t, err)
	assert.Empty(t, recErrs)
	assert.Equal(t, []string{"a", "b"}, batch.Columns)
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, "1", batch.Records[0].Values["a"])
	assert.Equal(t, int64(1), batch.Records[0].Index)

	batch, _, err = src.Next(2)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())

	_, _, err = src.Next(2)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTSVSourceUsesTabDelimiter(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("a\tb\n1\t2\n"))
	src, err := newSource(newArtifact(domain.ModalityTabular, "text/tab-separated-values"), rc)
	require.NoError(t, err)
	defer src.Close()

	batch, _, err := src.Next(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, batch.Columns)
	assert.Equal(t, "2", batch.Records[0].Values["b"])
}

func TestCSVSourceHeaderOnlyYieldsEmptyBatch(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("a,b\n"))
	src, err := newSource(newArtifact(domain.ModalityTabular, "text/csv"), rc)
	require.NoError(t, err)
	defer src.Close()

	batch, recErrs, err := src.Next(10)
	require.NoError(t, err)
	assert.Empty(t, recErrs)
	assert.Equal(t, 0, batch.Len())
	assert.Equal(t, []string{"a", "b"}, batch.Columns)

	_, _, err = src.Next(10)
	assert.ErrorIs(t, err, io.EOF)
}

func TestJSONLinesSourceSortsColumns(t *testing.T) {
	input := `{"b":"2","a":"1"}
not json
{"a":"3","c":true}
`
	rc := io.NopCloser(strings.NewReader(input))
	src, err := newSource(newArtifact(domain.ModalityTabular, "application/json"), rc)
	require.NoError(t, err)
	defer src.Close()

	batch, recErrs, err := src.Next(10)
	require.NoError(t, err)
	require.Len(t, recErrs, 1)
	assert.Equal(t, int64(2), recErrs[0].Index)
	assert.Equal(t, []string{"a", "b", "c"}, batch.Columns)
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, "true", batch.Records[1].Values["c"])
}

func TestJSONArraySourceBatches(t *testing.T) {
	rc := io.NopCloser(strings.NewReader(`[{"b":"2","a":"1"},{"a":"3","b":"4"},{"a":"5","b":"6"}]`))
	src, err := newSource(newArtifact(domain.ModalityTabular, "application/json"), rc)
	require.NoError(t, err)
	defer src.Close()

	batch, recErrs, err := src.Next(2)
	require.NoError(t, err)
	assert.Empty(t, recErrs)
	assert.Equal(t, []string{"a", "b"}, batch.Columns)
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, "1", batch.Records[0].Values["a"])
	assert.Equal(t, "4", batch.Records[1].Values["b"])

	batch, _, err = src.Next(2)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())

	_, _, err = src.Next(2)
	assert.ErrorIs(t, err, io.EOF)
}

func TestJSONArraySourceLeadingWhitespace(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("\n  [{\"a\":\"1\"}]"))
	src, err := newSource(newArtifact(domain.ModalityTabular, "application/json"), rc)
	require.NoError(t, err)
	defer src.Close()

	batch, _, err := src.Next(10)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())
}

func TestJSONArraySourceNonObjectElement(t *testing.T) {
	rc := io.NopCloser(strings.NewReader(`[{"a":"1"},7,{"a":"2"}]`))
	src, err := newSource(newArtifact(domain.ModalityTabular, "application/json"), rc)
	require.NoError(t, err)
	defer src.Close()

	batch, recErrs, err := src.Next(10)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Len())
	require.Len(t, recErrs, 1)
	assert.Equal(t, int64(2), recErrs[0].Index)
}

func TestJSONArraySourceEmptyArray(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("[]"))
	src, err := newSource(newArtifact(domain.ModalityTabular, "application/json"), rc)
	require.NoError(t, err)
	defer src.Close()

	_, _, err = src.Next(10)
	assert.ErrorIs(t, err, io.EOF)
}

func TestJSONSourceFallsBackToLines(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("{\"a\":\"1\"}\n{\"a\":\"2\"}\n"))
	src, err := newSource(newArtifact(domain.ModalityTabular, "application/json"), rc)
	require.NoError(t, err)
	defer src.Close()

	batch, _, err := src.Next(10)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Len())
	assert.Equal(t, []string{"a"}, batch.Columns)
}

func TestLineSourceSingleTextColumn(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("hello\nworld\n"))
	src, err := newSource(newArtifact(domain.ModalityText, "text/plain"), rc)
	require.NoError(t, err)
	defer src.Close()

	batch, _, err := src.Next(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"text"}, batch.Columns)
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, "world", batch.Records[1].Values["text"])
}

func TestNoSourceForBinaryModalities(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("binary"))
	_, err := newSource(newArtifact(domain.ModalityImage, "image/png"), rc)
	require.Error(t, err)
}
