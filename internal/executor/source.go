package executor

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"prepline/internal/domain"
	"prepline/internal/step"
)

// source streams an artifact as record batches. Implementations report
// malformed input rows as warnings rather than erroring, in line with the
// per-record failure policy.
type source interface {
	// Next returns up to limit records, io.EOF after the last batch.
	Next(limit int) (*step.Batch, []step.RecordError, error)
	Close() error
}

// newSource picks a decoder for the artifact's modality and content type.
func newSource(artifact *domain.Artifact, r io.ReadCloser) (source, error) {
	switch artifact.Modality {
	case domain.ModalityTabular:
		if artifact.ContentType == "application/json" {
			return newJSONSource(r)
		}
		delim := ','
		if artifact.ContentType == "text/tab-separated-values" {
			delim = '\t'
		}
		return newCSVSource(r, delim)
	case domain.ModalityText:
		return newLineSource(r), nil
	}
	r.Close()
	return nil, fmt.Errorf("no batch source for modality %q", artifact.Modality)
}

type csvSource struct {
	rc      io.ReadCloser
	reader  *csv.Reader
	columns []string
	index   int64
	emitted bool
}

func newCSVSource(rc io.ReadCloser, delim rune) (*csvSource, error) {
	reader := csv.NewReader(rc)
	reader.Comma = delim
	reader.FieldsPerRecord = -1 // ragged rows become record errors, not aborts
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		rc.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("input is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	return &csvSource{rc: rc, reader: reader, columns: header}, nil
}

func (s *csvSource) Next(limit int) (*step.Batch, []step.RecordError, error) {
	batch := step.NewBatch(s.columns)
	var recErrs []step.RecordError
	for batch.Len() < limit {
		row, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			// A header-only file still yields one empty batch so the
			// output carries the schema.
			if s.emitted && batch.Len() == 0 && len(recErrs) == 0 {
				return nil, nil, io.EOF
			}
			s.emitted = true
			return batch, recErrs, nil
		}
		if err != nil {
			s.index++
			recErrs = append(recErrs, step.RecordError{Index: s.index, Reason: err.Error()})
			continue
		}
		s.index++
		if len(row) != len(s.columns) {
			recErrs = append(recErrs, step.RecordError{
				Index:  s.index,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(s.columns), len(row)),
			})
			continue
		}
		rec := step.Record{Index: s.index, Values: make(map[string]string, len(s.columns))}
		for i, col := range s.columns {
			rec.Values[col] = row[i]
		}
		batch.Records = append(batch.Records, rec)
	}
	s.emitted = true
	return batch, recErrs, nil
}

func (s *csvSource) Close() error { return s.rc.Close() }

type lineSource struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
	index   int64
	done    bool
}

func newLineSource(rc io.ReadCloser) *lineSource {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &lineSource{rc: rc, scanner: scanner}
}

func (s *lineSource) Next(limit int) (*step.Batch, []step.RecordError, error) {
	if s.done {
		return nil, nil, io.EOF
	}
	batch := step.NewBatch([]string{"text"})
	for batch.Len() < limit {
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return nil, nil, fmt.Errorf("read line: %w", err)
			}
			break
		}
		s.index++
		batch.Records = append(batch.Records, step.Record{
			Index:  s.index,
			Values: map[string]string{"text": s.scanner.Text()},
		})
	}
	if batch.Len() == 0 {
		return nil, nil, io.EOF
	}
	return batch, nil, nil
}

func (s *lineSource) Close() error { return s.rc.Close() }

// newJSONSource distinguishes a JSON array of records from JSON Lines by the
// first non-whitespace byte. Both shapes classify as tabular.
func newJSONSource(rc io.ReadCloser) (source, error) {
	br := bufio.NewReader(rc)
	first, err := peekNonSpace(br)
	if err != nil {
		rc.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("input is empty")
		}
		return nil, fmt.Errorf("read input: %w", err)
	}
	buffered := bufferedReadCloser{Reader: br, closer: rc}
	if first != '[' {
		return newJSONLinesSource(buffered), nil
	}
	dec := json.NewDecoder(br)
	if _, err := dec.Token(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("read JSON array: %w", err)
	}
	return &jsonArraySource{rc: rc, dec: dec}, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			br.Discard(1)
		default:
			return b[0], nil
		}
	}
}

type bufferedReadCloser struct {
	*bufio.Reader
	closer io.Closer
}

func (b bufferedReadCloser) Close() error { return b.closer.Close() }

// jsonArraySource streams the elements of a top-level JSON array without
// holding the whole document in memory.
type jsonArraySource struct {
	rc      io.ReadCloser
	dec     *json.Decoder
	columns []string
	index   int64
	done    bool
}

func (s *jsonArraySource) Next(limit int) (*step.Batch, []step.RecordError, error) {
	if s.done {
		return nil, nil, io.EOF
	}
	var records []step.Record
	var recErrs []step.RecordError
	for len(records) < limit && s.dec.More() {
		s.index++
		var raw json.RawMessage
		if err := s.dec.Decode(&raw); err != nil {
			// A syntax error desyncs the decoder, so nothing after this
			// element can be recovered.
			s.done = true
			recErrs = append(recErrs, step.RecordError{Index: s.index, Reason: fmt.Sprintf("invalid JSON: %v", err)})
			break
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			recErrs = append(recErrs, step.RecordError{Index: s.index, Reason: "array element is not an object"})
			continue
		}
		rec := step.Record{Index: s.index, Values: make(map[string]string, len(obj))}
		for k, v := range obj {
			rec.Values[k] = scalarString(v)
			s.columns = addColumn(s.columns, k)
		}
		records = append(records, rec)
	}
	if !s.done && !s.dec.More() {
		s.done = true
		if _, err := s.dec.Token(); err != nil {
			return nil, nil, fmt.Errorf("read JSON array: %w", err)
		}
	}
	if len(records) == 0 && len(recErrs) == 0 {
		return nil, nil, io.EOF
	}
	batch := step.NewBatch(s.columns)
	batch.Records = records
	return batch, recErrs, nil
}

func (s *jsonArraySource) Close() error { return s.rc.Close() }

type jsonLinesSource struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
	columns []string
	index   int64
	done    bool
}

func newJSONLinesSource(rc io.ReadCloser) *jsonLinesSource {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &jsonLinesSource{rc: rc, scanner: scanner}
}

func (s *jsonLinesSource) Next(limit int) (*step.Batch, []step.RecordError, error) {
	if s.done {
		return nil, nil, io.EOF
	}
	var records []step.Record
	var recErrs []step.RecordError
	for len(records) < limit {
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return nil, nil, fmt.Errorf("read line: %w", err)
			}
			break
		}
		s.index++
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			recErrs = append(recErrs, step.RecordError{Index: s.index, Reason: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}
		rec := step.Record{Index: s.index, Values: make(map[string]string, len(obj))}
		for k, v := range obj {
			rec.Values[k] = scalarString(v)
			s.columns = addColumn(s.columns, k)
		}
		records = append(records, rec)
	}
	if len(records) == 0 && len(recErrs) == 0 {
		return nil, nil, io.EOF
	}
	batch := step.NewBatch(s.columns)
	batch.Records = records
	return batch, recErrs, nil
}

func (s *jsonLinesSource) Close() error { return s.rc.Close() }

// addColumn keeps the JSON-derived column set sorted so record order never
// changes the output schema.
func addColumn(cols []string, name string) []string {
	for _, c := range cols {
		if c == name {
			return cols
		}
	}
	cols = append(cols, name)
	sort.Strings(cols)
	return cols
}

func scalarString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
