package model

import (
	"math"
	"strconv"
	"strings"
)

// Value is a raw disclosed value. Values are stored as text and interpreted
// as numbers, booleans, or free text only when a computation needs them.
type Value string

// NumberValue formats f as a Value using the shortest exact representation.
func NumberValue(f float64) Value {
	return Value(strconv.FormatFloat(f, 'f', -1, 64))
}

// Float parses v as a finite number. Surrounding whitespace is ignored.
func (v Value) Float() (float64, bool) {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Truthy reports whether v is one of the textual boolean "true" forms:
// true, yes, or 1 (case-insensitive).
func (v Value) Truthy() bool {
	switch strings.ToLower(strings.TrimSpace(string(v))) {
	case "true", "yes", "1":
		return true
	}
	return false
}

// Numeric coerces v for summing and averaging. Numbers pass through; text
// counts as 1 when it affirms a disclosure (true, yes, disclosed) and 0
// otherwise.
func (v Value) Numeric() float64 {
	if f, ok := v.Float(); ok {
		return f
	}
	switch strings.ToLower(strings.TrimSpace(string(v))) {
	case "true", "yes", "disclosed":
		return 1
	}
	return 0
}

func (v Value) String() string { return string(v) }
