package frame

import (
	"github.com/sawpanic/rotator/internal/errs"
)

// Series maps unique string keys to values in insertion order.
type Series struct {
	keys  []string
	vals  []Value
	index map[string]int
}

// Entry is a single key/value pair of a Series.
type Entry struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// NewSeries builds a series from parallel key and value slices. Keys must be
// unique and the slices must have equal length.
func NewSeries(keys []string, vals []Value) (Series, error) {
	if len(keys) != len(vals) {
		return Series{}, errs.InvalidArgument("series has %d keys but %d values", len(keys), len(vals))
	}
	s := Series{
		keys:  make([]string, len(keys)),
		vals:  make([]Value, len(vals)),
		index: make(map[string]int, len(keys)),
	}
	copy(s.keys, keys)
	copy(s.vals, vals)
	for i, k := range keys {
		if _, dup := s.index[k]; dup {
			return Series{}, errs.InvalidArgument("duplicate series key %q", k)
		}
		s.index[k] = i
	}
	return s, nil
}

// FromEntries builds a series from ordered entries.
func FromEntries(entries []Entry) (Series, error) {
	keys := make([]string, len(entries))
	vals := make([]Value, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
		vals[i] = e.Value
	}
	return NewSeries(keys, vals)
}

// Constant returns a series assigning v to every key. Keys must be unique.
func Constant(keys []string, v Value) (Series, error) {
	vals := make([]Value, len(keys))
	for i := range vals {
		vals[i] = v
	}
	return NewSeries(keys, vals)
}

// Len returns the number of entries.
func (s Series) Len() int { return len(s.keys) }

// Keys returns a copy of the keys in order.
func (s Series) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Values returns a copy of the values in key order.
func (s Series) Values() []Value {
	out := make([]Value, len(s.vals))
	copy(out, s.vals)
	return out
}

// At returns the i-th entry.
func (s Series) At(i int) Entry {
	return Entry{Key: s.keys[i], Value: s.vals[i]}
}

// Get returns the value for key and whether the key exists.
func (s Series) Get(key string) (Value, bool) {
	i, ok := s.index[key]
	if !ok {
		return None(), false
	}
	return s.vals[i], true
}

// Has reports whether key is in the series.
func (s Series) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Entries returns a copy of all entries in order.
func (s Series) Entries() []Entry {
	out := make([]Entry, len(s.keys))
	for i := range s.keys {
		out[i] = s.At(i)
	}
	return out
}

// Reindex returns a series over keys; keys absent from s become None.
func (s Series) Reindex(keys []string) (Series, error) {
	vals := make([]Value, len(keys))
	for i, k := range keys {
		vals[i], _ = s.Get(k)
	}
	return NewSeries(keys, vals)
}

// Present returns the subset of entries with a present value, in order.
func (s Series) Present() Series {
	out := Series{index: make(map[string]int)}
	for i, v := range s.vals {
		if v.Valid() {
			out.index[s.keys[i]] = len(out.keys)
			out.keys = append(out.keys, s.keys[i])
			out.vals = append(out.vals, v)
		}
	}
	return out
}

// Sum adds all present values.
func (s Series) Sum() float64 {
	total := 0.0
	for _, v := range s.vals {
		if f, ok := v.Get(); ok {
			total += f
		}
	}
	return total
}

// Map returns a float map of the present values.
func (s Series) Map() map[string]float64 {
	out := make(map[string]float64, len(s.keys))
	for i, v := range s.vals {
		if f, ok := v.Get(); ok {
			out[s.keys[i]] = f
		}
	}
	return out
}
