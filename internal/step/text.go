package step

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"unicode"

	"prepline/internal/domain"
)

// Text steps operate on a single configurable field, "text" by default.

// normalizeText lowercases, trims, and collapses whitespace.
type normalizeText struct {
	field              string
	lowercase          bool
	trim               bool
	collapseWhitespace bool
}

func newNormalizeText(params Params) (Step, error) {
	if err := params.RejectUnknown("field", "lowercase", "trim", "collapse_whitespace"); err != nil {
		return nil, err
	}
	field, err := params.String("field", "text")
	if err != nil {
		return nil, err
	}
	lower, err := params.Bool("lowercase", true)
	if err != nil {
		return nil, err
	}
	trim, err := params.Bool("trim", true)
	if err != nil {
		return nil, err
	}
	collapse, err := params.Bool("collapse_whitespace", false)
	if err != nil {
		return nil, err
	}
	return &normalizeText{field: field, lowercase: lower, trim: trim, collapseWhitespace: collapse}, nil
}

func (s *normalizeText) Kind() string              { return "normalize_text" }
func (s *normalizeText) Modality() domain.Modality { return domain.ModalityText }
func (s *normalizeText) Idempotent() bool          { return true }
func (s *normalizeText) OrderSensitive() bool      { return true }

func (s *normalizeText) Apply(ctx context.Context, batch *Batch) (*Batch, []RecordError, error) {
	out := NewBatch(batch.Columns)
	out.Records = make([]Record, 0, len(batch.Records))
	for _, rec := range batch.Records {
		next := rec.Clone()
		v := next.Values[s.field]
		if s.lowercase {
			v = strings.ToLower(v)
		}
		if s.collapseWhitespace {
			v = strings.Join(strings.FieldsFunc(v, unicode.IsSpace), " ")
		}
		if s.trim {
			v = strings.TrimSpace(v)
		}
		next.Values[s.field] = v
		out.Records = append(out.Records, next)
	}
	return out, nil, nil
}

// filterLength drops records whose text field falls outside the configured
// character bounds.
type filterLength struct {
	field    string
	minChars int
	maxChars int
}

func newFilterLength(params Params) (Step, error) {
	if err := params.RejectUnknown("field", "min_chars", "max_chars"); err != nil {
		return nil, err
	}
	field, err := params.String("field", "text")
	if err != nil {
		return nil, err
	}
	minChars, err := params.Int("min_chars", 0)
	if err != nil {
		return nil, err
	}
	maxChars, err := params.Int("max_chars", 0)
	if err != nil {
		return nil, err
	}
	if minChars < 0 {
		return nil, invalidParam("min_chars", "must be non-negative")
	}
	if maxChars < 0 {
		return nil, invalidParam("max_chars", "must be non-negative")
	}
	if maxChars > 0 && minChars > maxChars {
		return nil, invalidParam("min_chars", fmt.Sprintf("minimum %d exceeds maximum %d", minChars, maxChars))
	}
	return &filterLength{field: field, minChars: minChars, maxChars: maxChars}, nil
}

func (s *filterLength) Kind() string              { return "filter_length" }
func (s *filterLength) Modality() domain.Modality { return domain.ModalityText }
func (s *filterLength) Idempotent() bool          { return true }
func (s *filterLength) OrderSensitive() bool      { return true }

func (s *filterLength) Apply(ctx context.Context, batch *Batch) (*Batch, []RecordError, error) {
	out := NewBatch(batch.Columns)
	for _, rec := range batch.Records {
		n := len([]rune(rec.Values[s.field]))
		if n < s.minChars {
			continue
		}
		if s.maxChars > 0 && n > s.maxChars {
			continue
		}
		out.Records = append(out.Records, rec.Clone())
	}
	return out, nil, nil
}

// shuffleAugment duplicates each record with its words shuffled, a cheap text
// augmentation. It carries inherent randomness, so it is non-idempotent and
// requires a seed to stay reproducible across retries.
type shuffleAugment struct {
	field string
	seed  int64
}

func newShuffleAugment(params Params) (Step, error) {
	if err := params.RejectUnknown("field", "seed"); err != nil {
		return nil, err
	}
	field, err := params.String("field", "text")
	if err != nil {
		return nil, err
	}
	seed, err := params.IntRequired("seed")
	if err != nil {
		return nil, err
	}
	return &shuffleAugment{field: field, seed: int64(seed)}, nil
}

func (s *shuffleAugment) Kind() string              { return "shuffle_augment" }
func (s *shuffleAugment) Modality() domain.Modality { return domain.ModalityText }
func (s *shuffleAugment) Idempotent() bool          { return false }
func (s *shuffleAugment) OrderSensitive() bool      { return true }

func (s *shuffleAugment) Apply(ctx context.Context, batch *Batch) (*Batch, []RecordError, error) {
	out := NewBatch(batch.Columns)
	out.Records = make([]Record, 0, 2*len(batch.Records))
	for _, rec := range batch.Records {
		out.Records = append(out.Records, rec.Clone())

		words := strings.Fields(rec.Values[s.field])
		if len(words) < 2 {
			continue
		}
		// Seeding from the record index keeps the augmentation a pure
		// function of (input, params) regardless of batch boundaries.
		rng := rand.New(rand.NewSource(s.seed ^ rec.Index))
		shuffled := append([]string(nil), words...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		aug := rec.Clone()
		aug.Values[s.field] = strings.Join(shuffled, " ")
		out.Records = append(out.Records, aug)
	}
	return out, nil, nil
}
