package ensemble

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Document is a single nested record as loaded from a record source.
type Document map[string]any

// Path is an ordered list of keys leading from a document to a scalar.
// String keys index maps, int keys index slices.
type Path []any

// ParsePath splits a dotted path ("temperature.max", "hourly.0.temp").
// Segments that parse as integers become slice indices; on maps they are
// looked up as keys.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if n, err := strconv.Atoi(part); err == nil {
			p = append(p, n)
			continue
		}
		p = append(p, part)
	}
	return p
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, k := range p {
		parts[i] = fmt.Sprint(k)
	}
	return strings.Join(parts, ".")
}

// Lookup navigates v along the path.
func (p Path) Lookup(v any) (any, error) {
	cur := v
	for i, key := range p {
		next, ok := step(cur, key)
		if !ok {
			return nil, fmt.Errorf("%w: %q at %q", ErrPathNotFound, p.String(), Path(p[:i+1]).String())
		}
		cur = next
	}
	return cur, nil
}

func step(cur, key any) (any, bool) {
	switch k := key.(type) {
	case string:
		switch c := cur.(type) {
		case Document:
			v, ok := c[k]
			return v, ok
		case map[string]any:
			v, ok := c[k]
			return v, ok
		}
	case int:
		switch c := cur.(type) {
		case Document, map[string]any:
			// All-digit map keys parse as indices.
			return step(cur, strconv.Itoa(k))
		case []any:
			if k < 0 || k >= len(c) {
				return nil, false
			}
			return c[k], true
		case []float64:
			if k < 0 || k >= len(c) {
				return nil, false
			}
			return c[k], true
		}
	}
	return nil, false
}

// Transform maps one extracted value to another.
type Transform interface {
	Apply(v any) (any, error)
}

// TransformFunc adapts a plain function to Transform.
type TransformFunc func(v any) (any, error)

func (f TransformFunc) Apply(v any) (any, error) {
	return f(v)
}

// Chain applies transforms left to right. An empty chain is the identity.
type Chain []Transform

func (c Chain) Apply(v any) (any, error) {
	var err error
	for _, t := range c {
		if v, err = t.Apply(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Feature names a scalar tracked independently by the model.
type Feature struct {
	Name       string
	Path       Path
	Transforms Chain
}

// Retrieve extracts the feature value from doc. A nil leaf is a missing
// value and is reported as NaN without running the transform chain.
func Retrieve(f Feature, doc Document) (float64, error) {
	raw, err := f.Path.Lookup(doc)
	if err != nil {
		return 0, fmt.Errorf("feature %q: %w", f.Name, err)
	}
	if raw == nil {
		return math.NaN(), nil
	}
	v, err := f.Transforms.Apply(raw)
	if err != nil {
		return 0, fmt.Errorf("feature %q: %w", f.Name, err)
	}
	out, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("feature %q: %w", f.Name, err)
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", v)
	}
}

// LabelOf renders the label carried by doc at path. Times are rendered as
// calendar dates so that labels sort chronologically.
func LabelOf(path Path, doc Document) (string, error) {
	raw, err := path.Lookup(doc)
	if err != nil {
		return "", fmt.Errorf("label: %w", err)
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case time.Time:
		return v.UTC().Format(time.DateOnly), nil
	case nil:
		return "", fmt.Errorf("label: %w: %q is empty", ErrPathNotFound, path.String())
	default:
		return fmt.Sprint(v), nil
	}
}
