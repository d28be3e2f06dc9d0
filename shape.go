package ortbench

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrShapeMismatch is returned when a buffer length does not match its shape.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrDynamicShape is returned when a concrete shape still holds a dynamic dim.
	ErrDynamicShape = errors.New("shape has dynamic dimensions")
	// ErrUnsupportedType is returned for tensors that are not float32.
	ErrUnsupportedType = errors.New("unsupported element type")
)

// TensorInfo describes one model input or output as reported by the runtime.
type TensorInfo struct {
	Name        string  `json:"name" yaml:"name"`
	ElementType string  `json:"element_type" yaml:"element_type"`
	Dims        []int64 `json:"dims" yaml:"dims,flow"`
}

// Rank is the number of dimensions.
func (t TensorInfo) Rank() int {
	return len(t.Dims)
}

// IsDynamic reports whether any dimension is symbolic (reported as <= 0).
func (t TensorInfo) IsDynamic() bool {
	for _, d := range t.Dims {
		if d <= 0 {
			return true
		}
	}
	return false
}

// ElementCount multiplies the dims, counting dynamic dims as 1.
func (t TensorInfo) ElementCount() int {
	n := 1
	for _, d := range t.Dims {
		if d > 0 {
			n *= int(d)
		}
	}
	return n
}

// Resolve returns a concrete shape. Dynamic dims take the value at the same
// position in overrides when present and positive, otherwise 1.
func (t TensorInfo) Resolve(overrides []int64) []int64 {
	out := make([]int64, len(t.Dims))
	for i, d := range t.Dims {
		switch {
		case d > 0:
			out[i] = d
		case i < len(overrides) && overrides[i] > 0:
			out[i] = overrides[i]
		default:
			out[i] = 1
		}
	}
	return out
}

func (t TensorInfo) String() string {
	return fmt.Sprintf("%s %s[%s]", t.Name, t.ElementType, FormatDims(t.Dims))
}

// ElementCount returns the number of elements of a concrete shape.
func ElementCount(dims []int64) (int, error) {
	n := 1
	for i, d := range dims {
		if d <= 0 {
			return 0, fmt.Errorf("dim %d is %d: %w", i, d, ErrDynamicShape)
		}
		n *= int(d)
	}
	return n, nil
}

// ParseDims parses "1x3x224x224" (commas are accepted as separators too).
// A "?" or "-1" denotes a dynamic dim.
func ParseDims(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty shape")
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == 'x' || r == 'X' || r == ','
	})
	dims := make([]int64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "?" {
			dims = append(dims, -1)
			continue
		}
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid dim %q in shape %q: %w", f, s, err)
		}
		if v == 0 || v < -1 {
			return nil, fmt.Errorf("invalid dim %d in shape %q", v, s)
		}
		dims = append(dims, v)
	}
	return dims, nil
}

// FormatDims is the inverse of ParseDims; dynamic dims print as "?".
func FormatDims(dims []int64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		if d <= 0 {
			parts[i] = "?"
			continue
		}
		parts[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(parts, "x")
}

func cloneDims(dims []int64) []int64 {
	return append([]int64(nil), dims...)
}

func shapeKey(dims []int64) string {
	return FormatDims(dims)
}
