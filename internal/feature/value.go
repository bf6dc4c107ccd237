package feature

import (
	"strconv"
)

// Value is a single attribute value tagged with its kind.
type Value struct {
	Kind  FieldType
	Null  bool
	Int   int64
	Float float64
	Text  string
	Bool  bool
}

// Int returns an integer value.
func Int(v int64) Value { return Value{Kind: TypeInt, Int: v} }

// Float returns a floating-point value.
func Float(v float64) Value { return Value{Kind: TypeFloat, Float: v} }

// Text returns a text value.
func Text(v string) Value { return Value{Kind: TypeText, Text: v} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{Kind: TypeBool, Bool: v} }

// Null returns a null value of the given kind.
func Null(kind FieldType) Value { return Value{Kind: kind, Null: true} }

// Any returns the underlying Go value, or nil for nulls.
func (v Value) Any() any {
	if v.Null {
		return nil
	}
	switch v.Kind {
	case TypeInt:
		return v.Int
	case TypeFloat:
		return v.Float
	case TypeText:
		return v.Text
	case TypeBool:
		return v.Bool
	}
	return nil
}

// String formats the value for text-only outputs. Nulls format as "".
func (v Value) String() string {
	if v.Null {
		return ""
	}
	switch v.Kind {
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case TypeText:
		return v.Text
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

// ParseValue converts raw text into a value of the given kind. Empty input
// yields a null.
func ParseValue(kind FieldType, raw string) (Value, error) {
	if raw == "" {
		return Null(kind), nil
	}
	switch kind {
	case TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, &ValidationError{Reason: "invalid int " + quote(raw)}
		}
		return Int(n), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, &ValidationError{Reason: "invalid float " + quote(raw)}
		}
		return Float(f), nil
	case TypeBool:
		b, ok := parseBool(raw)
		if !ok {
			return Value{}, &ValidationError{Reason: "invalid bool " + quote(raw)}
		}
		return Bool(b), nil
	case TypeText:
		return Text(raw), nil
	}
	return Value{}, &ValidationError{Reason: "unknown field type " + kind.String()}
}

// InferType picks the narrowest kind that can hold every sample. Empty
// samples are ignored; all-empty columns are text.
func InferType(samples []string) FieldType {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, s := range samples {
		if s == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			isFloat = false
		}
		if _, ok := parseBool(s); !ok {
			isBool = false
		}
	}
	switch {
	case !seen:
		return TypeText
	case isInt:
		return TypeInt
	case isFloat:
		return TypeFloat
	case isBool:
		return TypeBool
	}
	return TypeText
}

// parseBool accepts the spellings found in DBF logical columns and
// spreadsheets, not just strconv's set.
func parseBool(s string) (bool, bool) {
	switch s {
	case "true", "TRUE", "True", "T", "t", "Y", "y", "yes", "YES":
		return true, true
	case "false", "FALSE", "False", "F", "f", "N", "n", "no", "NO":
		return false, true
	}
	return false, false
}
