// Package feature defines the point features, attribute schemas and records
// shared by the join engine, the buffer operation, sources and sinks.
package feature

import (
	"strings"
)

// FieldType is the closed set of attribute value kinds.
type FieldType int

// Supported field types.
const (
	TypeInt FieldType = iota + 1
	TypeFloat
	TypeText
	TypeBool
)

var fieldTypeNames = map[FieldType]string{
	TypeInt:   "int",
	TypeFloat: "float",
	TypeText:  "text",
	TypeBool:  "bool",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	_, ok := fieldTypeNames[t]
	return ok
}

// ParseFieldType maps a type name (and a few common aliases) to a FieldType.
// Unknown names are rejected rather than passed through.
func ParseFieldType(name string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int", "integer", "int64", "long", "longlong":
		return TypeInt, nil
	case "float", "double", "real", "float64", "number":
		return TypeFloat, nil
	case "text", "string", "str", "varchar":
		return TypeText, nil
	case "bool", "boolean", "logical":
		return TypeBool, nil
	}
	return 0, &ValidationError{Reason: "unknown field type " + quote(name)}
}

// Field is a named, typed attribute column.
type Field struct {
	Name string    `json:"name" yaml:"name"`
	Type FieldType `json:"type" yaml:"type"`
}

// Schema is an ordered list of fields.
type Schema []Field

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named field, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks that every field has a non-empty unique name and a known type.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for i, f := range s {
		if f.Name == "" {
			return &ValidationError{Reason: "empty field name", Index: i}
		}
		if !f.Type.Valid() {
			return &ValidationError{Reason: "field " + quote(f.Name) + " has unknown type", Index: i}
		}
		if seen[f.Name] {
			return &ValidationError{Reason: "duplicate field name " + quote(f.Name), Index: i}
		}
		seen[f.Name] = true
	}
	return nil
}

func quote(s string) string {
	return `"` + s + `"`
}
