package model

import (
	"github.com/m-mizutani/goerr/v2"
)

// Metadata is an arbitrary key/value map attached to sessions, messages and
// documents. Values must be JSON-compatible; validation happens at the API
// boundary so stores never see an unencodable value.
type Metadata map[string]any

// Validate checks every value is a JSON-compatible type
func (m Metadata) Validate() error {
	for k, v := range m {
		if !jsonCompatible(v) {
			return goerr.Wrap(ErrInvalidMetadata, "unsupported metadata value",
				goerr.V("key", k), goerr.V("value", v))
		}
	}
	return nil
}

func jsonCompatible(v any) bool {
	switch val := v.(type) {
	case nil, bool, string,
		int, int32, int64, float32, float64:
		return true
	case []any:
		for _, e := range val {
			if !jsonCompatible(e) {
				return false
			}
		}
		return true
	case map[string]any:
		return Metadata(val).Validate() == nil
	default:
		return false
	}
}

// Matches reports whether every key/value pair in filter is present in m
// with an equal value. An empty filter matches everything.
func (m Metadata) Matches(filter Metadata) bool {
	for k, want := range filter {
		got, ok := m[k]
		if !ok || !metadataEqual(got, want) {
			return false
		}
	}
	return true
}

// metadataEqual compares values after numeric normalization. Metadata that
// round-trips through JSON comes back with float64 numbers, so integer
// filters still have to match. Slices and maps are walked recursively; a
// plain == on them would panic.
func metadataEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}

	if av, ok := asSlice(a); ok {
		bv, ok := asSlice(b)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !metadataEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	}

	if av, ok := asMap(a); ok {
		bv, ok := asMap(b)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bval, ok := bv[k]
			if !ok || !metadataEqual(v, bval) {
				return false
			}
		}
		return true
	}

	return a == b
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Metadata:
		return m, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
