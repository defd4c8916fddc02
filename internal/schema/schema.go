// Package schema declares the input and output shapes of generation flows.
// The same declaration validates requests, validates generation results and
// is sent to the backend, where field descriptions act as instructions.
package schema

import (
	"sort"
	"strings"
)

type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
)

const (
	FormatDataURI = "data-uri"
	FormatDate    = "date"
)

type Schema struct {
	Type        Type
	Description string
	Properties  map[string]*Schema
	Required    []string
	Enum        []string
	Items       *Schema
	Minimum     *float64
	Maximum     *float64
	// ExclusiveMinimum makes Minimum a strict bound.
	ExclusiveMinimum bool
	MinLength        int
	MinItems         int
	MaxItems         int
	Format           string

	// order keeps the declared property order of Object.
	order []string
}

// Field pairs a property name with its schema for Object.
type Field struct {
	Name     string
	Schema   *Schema
	Required bool
}

func Object(description string, fields ...Field) *Schema {
	s := &Schema{Type: TypeObject, Description: description, Properties: make(map[string]*Schema, len(fields))}
	for _, f := range fields {
		if _, dup := s.Properties[f.Name]; !dup {
			s.order = append(s.order, f.Name)
		}
		s.Properties[f.Name] = f.Schema
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

func Required(name string, s *Schema) Field { return Field{Name: name, Schema: s, Required: true} }

func Optional(name string, s *Schema) Field { return Field{Name: name, Schema: s} }

func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

// Text is a string that must not be blank.
func Text(description string) *Schema {
	return &Schema{Type: TypeString, Description: description, MinLength: 1}
}

func DataURI(description string) *Schema {
	return &Schema{Type: TypeString, Description: description, Format: FormatDataURI, MinLength: 1}
}

func Date(description string) *Schema {
	return &Schema{Type: TypeString, Description: description, Format: FormatDate}
}

func Enum(description string, values ...string) *Schema {
	return &Schema{Type: TypeString, Description: description, Enum: values}
}

func Integer(description string) *Schema {
	return &Schema{Type: TypeInteger, Description: description}
}

func Number(description string) *Schema {
	return &Schema{Type: TypeNumber, Description: description}
}

func Boolean(description string) *Schema {
	return &Schema{Type: TypeBoolean, Description: description}
}

func ArrayOf(description string, items *Schema) *Schema {
	return &Schema{Type: TypeArray, Description: description, Items: items}
}

// Min sets an inclusive lower bound and returns s for chaining.
func (s *Schema) Min(v float64) *Schema {
	s.Minimum = &v
	s.ExclusiveMinimum = false
	return s
}

// Above sets an exclusive lower bound.
func (s *Schema) Above(v float64) *Schema {
	s.Minimum = &v
	s.ExclusiveMinimum = true
	return s
}

func (s *Schema) Max(v float64) *Schema {
	s.Maximum = &v
	return s
}

// Len bounds the number of array items; zero leaves a side unbounded.
func (s *Schema) Len(min, max int) *Schema {
	s.MinItems = min
	s.MaxItems = max
	return s
}

// Gemini renders the schema in the generateContent responseSchema dialect.
func (s *Schema) Gemini() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": strings.ToUpper(string(s.Type))}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["format"] = "enum"
		out["enum"] = s.Enum
	}
	if s.Format == FormatDate {
		out["format"] = "date"
	}
	if s.Minimum != nil {
		out["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		out["maximum"] = *s.Maximum
	}
	if s.MinItems > 0 {
		out["minItems"] = s.MinItems
	}
	if s.MaxItems > 0 {
		out["maxItems"] = s.MaxItems
	}
	if s.Items != nil {
		out["items"] = s.Items.Gemini()
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for _, name := range s.propertyNames() {
			props[name] = s.Properties[name].Gemini()
		}
		out["properties"] = props
		out["propertyOrdering"] = s.propertyNames()
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// propertyNames lists properties in declaration order, falling back to
// sorted names for schemas built without Object.
func (s *Schema) propertyNames() []string {
	if len(s.order) == len(s.Properties) {
		return s.order
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
