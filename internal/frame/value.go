// Package frame provides the in-memory cross-sectional structures used by
// the ranking pipeline: a tri-state cell value, a keyed series and a keyed
// table with a fixed column set.
package frame

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is a cell that is either present with a finite float or absent.
// The zero Value is absent.
type Value struct {
	v  float64
	ok bool
}

// Some returns a present value. NaN and ±Inf are not representable and
// yield an absent value.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{v: v, ok: true}
}

// None returns an absent value.
func None() Value {
	return Value{}
}

// Get returns the underlying float and whether it is present.
func (x Value) Get() (float64, bool) {
	return x.v, x.ok
}

// Valid reports whether the value is present.
func (x Value) Valid() bool {
	return x.ok
}

// Or returns the value when present, otherwise def.
func (x Value) Or(def float64) float64 {
	if x.ok {
		return x.v
	}
	return def
}

func (x Value) String() string {
	if !x.ok {
		return "NA"
	}
	return strconv.FormatFloat(x.v, 'g', -1, 64)
}

// MarshalJSON encodes an absent value as null.
func (x Value) MarshalJSON() ([]byte, error) {
	if !x.ok {
		return []byte("null"), nil
	}
	return json.Marshal(x.v)
}

// UnmarshalJSON decodes null as absent.
func (x *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*x = None()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*x = Some(f)
	return nil
}

// Values converts plain floats into values, mapping NaN to absent.
func Values(fs ...float64) []Value {
	out := make([]Value, len(fs))
	for i, f := range fs {
		out[i] = Some(f)
	}
	return out
}
