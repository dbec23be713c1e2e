package step

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"prepline/internal/domain"
)

// Tabular steps treat an empty string as a missing value and operate
// batch-locally: statistics like mean or min/max are computed over the batch
// being processed, which keeps Apply a pure function of its input.

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// targetColumns resolves the configured column list against the batch layout.
// An explicit list is filtered to columns that exist; an empty list selects
// every column for which numericOnly is satisfied.
func targetColumns(batch *Batch, configured []string, numericOnly bool) []string {
	if len(configured) > 0 {
		var out []string
		for _, c := range configured {
			for _, have := range batch.Columns {
				if c == have {
					out = append(out, c)
					break
				}
			}
		}
		return out
	}
	if !numericOnly {
		return append([]string(nil), batch.Columns...)
	}
	var out []string
	for _, c := range batch.Columns {
		if columnIsNumeric(batch, c) {
			out = append(out, c)
		}
	}
	return out
}

// columnIsNumeric reports whether every non-missing value in the column
// parses as a float.
func columnIsNumeric(batch *Batch, column string) bool {
	seen := false
	for _, rec := range batch.Records {
		v := rec.Values[column]
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// imputeMissing fills missing values using a batch-local statistic.
type imputeMissing struct {
	strategy  string
	fillValue string
	columns   []string
}

func newImputeMissing(params Params) (Step, error) {
	if err := params.RejectUnknown("strategy", "fill_value", "columns"); err != nil {
		return nil, err
	}
	strategy, err := params.Enum("strategy", "mean", "mean", "median", "most_frequent", "constant")
	if err != nil {
		return nil, err
	}
	fill := "0"
	if v, ok := params["fill_value"]; ok {
		switch n := v.(type) {
		case string:
			fill = n
		case float64:
			fill = formatFloat(n)
		case int:
			fill = strconv.Itoa(n)
		default:
			return nil, invalidParam("fill_value", fmt.Sprintf("expected string or number, got %T", v))
		}
	}
	columns, err := params.Strings("columns")
	if err != nil {
		return nil, err
	}
	return &imputeMissing{strategy: strategy, fillValue: fill, columns: columns}, nil
}

func (s *imputeMissing) Kind() string              { return "impute_missing" }
func (s *imputeMissing) Modality() domain.Modality { return domain.ModalityTabular }
func (s *imputeMissing) Idempotent() bool          { return true }
func (s *imputeMissing) OrderSensitive() bool      { return true }

func (s *imputeMissing) Apply(ctx context.Context, batch *Batch) (*Batch, []RecordError, error) {
	numericOnly := s.strategy == "mean" || s.strategy == "median"
	cols := targetColumns(batch, s.columns, numericOnly)

	fills := make(map[string]string, len(cols))
	for _, col := range cols {
		switch s.strategy {
		case "constant":
			fills[col] = s.fillValue
		case "most_frequent":
			fills[col] = mostFrequent(batch, col)
		default:
			vals := numericValues(batch, col)
			if len(vals) == 0 {
				fills[col] = ""
				continue
			}
			if s.strategy == "mean" {
				fills[col] = formatFloat(mean(vals))
			} else {
				fills[col] = formatFloat(median(vals))
			}
		}
	}

	out := NewBatch(batch.Columns)
	out.Records = make([]Record, 0, len(batch.Records))
	for _, rec := range batch.Records {
		next := rec.Clone()
		for _, col := range cols {
			if next.Values[col] == "" && fills[col] != "" {
				next.Values[col] = fills[col]
			}
		}
		out.Records = append(out.Records, next)
	}
	return out, nil, nil
}

func numericValues(batch *Batch, column string) []float64 {
	var vals []float64
	for _, rec := range batch.Records {
		v := rec.Values[column]
		if v == "" {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			vals = append(vals, f)
		}
	}
	return vals
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// mostFrequent breaks count ties lexicographically so imputation stays
// deterministic.
func mostFrequent(batch *Batch, column string) string {
	counts := make(map[string]int)
	for _, rec := range batch.Records {
		if v := rec.Values[column]; v != "" {
			counts[v]++
		}
	}
	best, bestCount := "", 0
	for v, c := range counts {
		if best == "" || c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

// scaleNumeric rescales numeric columns batch-locally.
type scaleNumeric struct {
	scaler  string
	columns []string
}

func newScaleNumeric(params Params) (Step, error) {
	if err := params.RejectUnknown("scaler", "columns"); err != nil {
		return nil, err
	}
	scaler, err := params.Enum("scaler", "standard", "standard", "minmax")
	if err != nil {
		return nil, err
	}
	columns, err := params.Strings("columns")
	if err != nil {
		return nil, err
	}
	return &scaleNumeric{scaler: scaler, columns: columns}, nil
}

func (s *scaleNumeric) Kind() string              { return "scale_numeric" }
func (s *scaleNumeric) Modality() domain.Modality { return domain.ModalityTabular }
func (s *scaleNumeric) Idempotent() bool          { return true }
func (s *scaleNumeric) OrderSensitive() bool      { return true }

func (s *scaleNumeric) Apply(ctx context.Context, batch *Batch) (*Batch, []RecordError, error) {
	cols := targetColumns(batch, s.columns, len(s.columns) == 0)

	type stats struct{ mean, std, min, max float64 }
	colStats := make(map[string]stats, len(cols))
	for _, col := range cols {
		vals := numericValues(batch, col)
		if len(vals) == 0 {
			continue
		}
		st := stats{min: vals[0], max: vals[0]}
		st.mean = mean(vals)
		var sq float64
		for _, v := range vals {
			sq += (v - st.mean) * (v - st.mean)
			if v < st.min {
				st.min = v
			}
			if v > st.max {
				st.max = v
			}
		}
		st.std = math.Sqrt(sq / float64(len(vals)))
		colStats[col] = st
	}

	out := NewBatch(batch.Columns)
	out.Records = make([]Record, 0, len(batch.Records))
	var recErrs []RecordError
	for _, rec := range batch.Records {
		next := rec.Clone()
		bad := false
		for _, col := range cols {
			raw := next.Values[col]
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				recErrs = append(recErrs, RecordError{Index: rec.Index, Reason: fmt.Sprintf("column %q: %q is not numeric", col, raw)})
				bad = true
				break
			}
			st := colStats[col]
			var scaled float64
			if s.scaler == "standard" {
				if st.std > 0 {
					scaled = (v - st.mean) / st.std
				}
			} else {
				if span := st.max - st.min; span > 0 {
					scaled = (v - st.min) / span
				}
			}
			next.Values[col] = formatFloat(scaled)
		}
		if !bad {
			out.Records = append(out.Records, next)
		}
	}
	return out, recErrs, nil
}

// encodeLabels maps categorical values to integer codes. Codes follow the
// sorted order of distinct values so encodings are deterministic.
type encodeLabels struct {
	columns []string
}

func newEncodeLabels(params Params) (Step, error) {
	if err := params.RejectUnknown("columns"); err != nil {
		return nil, err
	}
	columns, err := params.Strings("columns")
	if err != nil {
		return nil, err
	}
	return &encodeLabels{columns: columns}, nil
}

func (s *encodeLabels) Kind() string              { return "encode_labels" }
func (s *encodeLabels) Modality() domain.Modality { return domain.ModalityTabular }
func (s *encodeLabels) Idempotent() bool          { return true }
func (s *encodeLabels) OrderSensitive() bool      { return true }

func (s *encodeLabels) Apply(ctx context.Context, batch *Batch) (*Batch, []RecordError, error) {
	cols := s.columns
	if len(cols) == 0 {
		for _, c := range batch.Columns {
			if !columnIsNumeric(batch, c) {
				cols = append(cols, c)
			}
		}
	} else {
		cols = targetColumns(batch, cols, false)
	}

	codes := make(map[string]map[string]int, len(cols))
	for _, col := range cols {
		distinct := make(map[string]struct{})
		for _, rec := range batch.Records {
			if v := rec.Values[col]; v != "" {
				distinct[v] = struct{}{}
			}
		}
		sorted := make([]string, 0, len(distinct))
		for v := range distinct {
			sorted = append(sorted, v)
		}
		sort.Strings(sorted)
		mapping := make(map[string]int, len(sorted))
		for i, v := range sorted {
			mapping[v] = i
		}
		codes[col] = mapping
	}

	out := NewBatch(batch.Columns)
	out.Records = make([]Record, 0, len(batch.Records))
	for _, rec := range batch.Records {
		next := rec.Clone()
		for _, col := range cols {
			if v := next.Values[col]; v != "" {
				next.Values[col] = strconv.Itoa(codes[col][v])
			}
		}
		out.Records = append(out.Records, next)
	}
	return out, nil, nil
}

// selectColumns projects the batch onto the configured columns.
type selectColumns struct {
	columns []string
}

func newSelectColumns(params Params) (Step, error) {
	if err := params.RejectUnknown("columns"); err != nil {
		return nil, err
	}
	columns, err := params.Strings("columns")
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, invalidParam("columns", "at least one column is required")
	}
	return &selectColumns{columns: columns}, nil
}

func (s *selectColumns) Kind() string              { return "select_columns" }
func (s *selectColumns) Modality() domain.Modality { return domain.ModalityTabular }
func (s *selectColumns) Idempotent() bool          { return true }
func (s *selectColumns) OrderSensitive() bool      { return true }

func (s *selectColumns) Apply(ctx context.Context, batch *Batch) (*Batch, []RecordError, error) {
	for _, col := range s.columns {
		found := false
		for _, have := range batch.Columns {
			if col == have {
				found = true
				break
			}
		}
		if !found {
			// The parameter contract no longer matches the data: abort
			// the run rather than silently projecting nothing.
			return nil, nil, Fatalf("select_columns: column %q not present in input (have %s)", col, strings.Join(batch.Columns, ", "))
		}
	}

	out := NewBatch(s.columns)
	out.Records = make([]Record, 0, len(batch.Records))
	for _, rec := range batch.Records {
		next := Record{Index: rec.Index, Values: make(map[string]string, len(s.columns))}
		for _, col := range s.columns {
			next.Values[col] = rec.Values[col]
		}
		out.Records = append(out.Records, next)
	}
	return out, nil, nil
}

// dropMissing filters out records with missing values in the configured
// columns (all columns when unset).
type dropMissing struct {
	columns []string
}

func newDropMissing(params Params) (Step, error) {
	if err := params.RejectUnknown("columns"); err != nil {
		return nil, err
	}
	columns, err := params.Strings("columns")
	if err != nil {
		return nil, err
	}
	return &dropMissing{columns: columns}, nil
}

func (s *dropMissing) Kind() string              { return "drop_missing" }
func (s *dropMissing) Modality() domain.Modality { return domain.ModalityTabular }
func (s *dropMissing) Idempotent() bool          { return true }
func (s *dropMissing) OrderSensitive() bool      { return true }

func (s *dropMissing) Apply(ctx context.Context, batch *Batch) (*Batch, []RecordError, error) {
	cols := targetColumns(batch, s.columns, false)
	out := NewBatch(batch.Columns)
	for _, rec := range batch.Records {
		keep := true
		for _, col := range cols {
			if rec.Values[col] == "" {
				keep = false
				break
			}
		}
		if keep {
			out.Records = append(out.Records, rec.Clone())
		}
	}
	return out, nil, nil
}

// dedupeRows keeps the first occurrence of each key combination in source
// order.
type dedupeRows struct {
	keys []string
}

func newDedupeRows(params Params) (Step, error) {
	if err := params.RejectUnknown("keys"); err != nil {
		return nil, err
	}
	keys, err := params.Strings("keys")
	if err != nil {
		return nil, err
	}
	return &dedupeRows{keys: keys}, nil
}

func (s *dedupeRows) Kind() string              { return "dedupe_rows" }
func (s *dedupeRows) Modality() domain.Modality { return domain.ModalityTabular }
func (s *dedupeRows) Idempotent() bool          { return true }
func (s *dedupeRows) OrderSensitive() bool      { return true }

func (s *dedupeRows) Apply(ctx context.Context, batch *Batch) (*Batch, []RecordError, error) {
	keys := targetColumns(batch, s.keys, false)
	seen := make(map[string]struct{}, len(batch.Records))
	out := NewBatch(batch.Columns)
	for _, rec := range batch.Records {
		var sb strings.Builder
		for _, k := range keys {
			sb.WriteString(rec.Values[k])
			sb.WriteByte(0x1f)
		}
		fp := sb.String()
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out.Records = append(out.Records, rec.Clone())
	}
	return out, nil, nil
}
