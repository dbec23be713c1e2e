package step

import (
	"fmt"
	"math"
	"sort"

	"prepline/internal/domain"
)

// Params is the schema-checked parameter mapping for one step instance. Keys
// are unique by construction; values arrive as decoded JSON or YAML scalars.
type Params map[string]any

func invalidParam(key, detail string) error {
	return &domain.ValidationError{Err: domain.ErrInvalidParameter, Param: key, Detail: detail}
}

// String returns the string at key or def when absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidParam(key, fmt.Sprintf("expected string, got %T", v))
	}
	return s, nil
}

// Enum returns the string at key, defaulting to def, and requires it to be
// one of allowed.
func (p Params) Enum(key, def string, allowed ...string) (string, error) {
	s, err := p.String(key, def)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", invalidParam(key, fmt.Sprintf("%q is not one of %v", s, allowed))
}

// Float returns the number at key or def when absent. JSON decodes all
// numbers as float64; YAML may produce int.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, invalidParam(key, fmt.Sprintf("expected number, got %T", v))
}

// Int returns the integer at key or def when absent. Fractional values are
// rejected rather than truncated.
func (p Params) Int(key string, def int) (int, error) {
	f, err := p.Float(key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, invalidParam(key, fmt.Sprintf("expected integer, got %v", f))
	}
	return int(f), nil
}

// IntRequired returns the integer at key, failing when absent.
func (p Params) IntRequired(key string) (int, error) {
	if _, ok := p[key]; !ok {
		return 0, invalidParam(key, "required parameter is missing")
	}
	return p.Int(key, 0)
}

// Bool returns the boolean at key or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidParam(key, fmt.Sprintf("expected boolean, got %T", v))
	}
	return b, nil
}

// Strings returns the string list at key or nil when absent.
func (p Params) Strings(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, invalidParam(key, fmt.Sprintf("expected list of strings, got element %T", item))
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, invalidParam(key, fmt.Sprintf("expected list of strings, got %T", v))
}

// RejectUnknown fails when p contains a key outside known. Closes the gap
// where a typoed parameter silently does nothing.
func (p Params) RejectUnknown(known ...string) error {
	allowed := make(map[string]struct{}, len(known))
	for _, k := range known {
		allowed[k] = struct{}{}
	}
	var extra []string
	for k := range p {
		if _, ok := allowed[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return invalidParam(extra[0], "unknown parameter")
}
