// Package collections holds generic mapping helpers: inversion, collision
// detection and keyed projection of slices into maps.
package collections

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/samber/lo"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrDuplicateKey is returned by ToMap when two items produce the same key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnsupportedValue is returned by InvertJSON for values that cannot become keys.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// Entry is one key/value pair of an ordered mapping.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// FromEntries builds an ordered mapping in the order the entries are given.
// A repeated key keeps its first position and takes the later value.
func FromEntries[K comparable, V any](entries ...Entry[K, V]) *orderedmap.OrderedMap[K, V] {
	om := orderedmap.New[K, V]()
	for _, e := range entries {
		om.Set(e.Key, e.Value)
	}
	return om
}

// Invert returns a new mapping with every (k, v) of d turned into (v, k).
//
// When several keys share a value the key that comes last in d's insertion
// order wins; the inverted entry keeps the position of the value's first
// occurrence. This overwrite is silent. Callers that must reject it check
// Collisions first. d is not modified; a nil d yields an empty mapping.
func Invert[K, V comparable](d *orderedmap.OrderedMap[K, V]) *orderedmap.OrderedMap[V, K] {
	out := orderedmap.New[V, K]()
	if d == nil {
		return out
	}
	for pair := d.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Value, pair.Key)
	}
	return out
}

// InvertMap is Invert for a plain Go map. Go maps have no iteration order, so
// on a value collision the surviving key is unspecified.
func InvertMap[K, V comparable](m map[K]V) map[V]K {
	return lo.Invert(m)
}

// Collisions returns the values of d held by more than one key, in order of
// first occurrence.
func Collisions[K, V comparable](d *orderedmap.OrderedMap[K, V]) []V {
	if d == nil {
		return nil
	}
	values := make([]V, 0, d.Len())
	for pair := d.Oldest(); pair != nil; pair = pair.Next() {
		values = append(values, pair.Value)
	}
	return lo.FindDuplicates(values)
}

// MapCollisions returns the values of m held by more than one key, in no
// particular order.
func MapCollisions[K, V comparable](m map[K]V) []V {
	return lo.FindDuplicates(lo.Values(m))
}

// ToMap projects items into a map using key and value. Two items with the same
// key are an error; no partial map is returned.
func ToMap[T any, K comparable, V any](items []T, key func(T) K, value func(T) V) (map[K]V, error) {
	out := make(map[K]V, len(items))
	for i, item := range items {
		k := key(item)
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("%w: %v (item %d)", ErrDuplicateKey, k, i)
		}
		out[k] = value(item)
	}
	return out, nil
}

// InvertJSON inverts a JSON object, preserving member order. Values must be
// scalars (string, number, bool or null); they are rendered as object keys in
// their JSON text form, so {"Bar":600} becomes {"600":"Bar"}.
func InvertJSON(data []byte) ([]byte, error) {
	keyed, err := scalarObject(data)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(Invert(keyed))
	if err != nil {
		return nil, fmt.Errorf("marshal inverted object: %w", err)
	}
	return out, nil
}

// JSONCollisions lists, in first-seen order, the values of a JSON object that
// are held by more than one key. InvertJSON keeps only the last such key.
func JSONCollisions(data []byte) ([]string, error) {
	keyed, err := scalarObject(data)
	if err != nil {
		return nil, err
	}
	return Collisions(keyed), nil
}

// scalarObject decodes a JSON object, rendering each scalar value as text.
func scalarObject(data []byte) (*orderedmap.OrderedMap[string, string], error) {
	in := orderedmap.New[string, any]()
	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("parse object: %w", err)
	}

	keyed := orderedmap.New[string, string](in.Len())
	for pair := in.Oldest(); pair != nil; pair = pair.Next() {
		k, err := scalarKey(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("value of %q: %w", pair.Key, err)
		}
		keyed.Set(pair.Key, k)
	}
	return keyed, nil
}

func scalarKey(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}
