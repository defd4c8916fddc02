package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"suraksha-jal/internal/media"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

// ValidationError lists every field that failed, in declaration order.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateJSON decodes raw and validates the result.
func (s *Schema) ValidateJSON(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &ValidationError{Fields: []FieldError{{Message: "is not valid JSON"}}}
	}
	return s.Validate(v)
}

// ValidateValue validates the JSON encoding of v, so Go structs are checked
// exactly as a request body carrying the same fields would be.
func (s *Schema) ValidateValue(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &ValidationError{Fields: []FieldError{{Message: "cannot be encoded: " + err.Error()}}}
	}
	return s.ValidateJSON(raw)
}

// Validate checks a decoded JSON value (maps, slices, float64, string, bool).
func (s *Schema) Validate(v any) error {
	var errs []FieldError
	s.validate("", v, &errs)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func (s *Schema) validate(path string, v any, errs *[]FieldError) {
	add := func(format string, args ...any) {
		*errs = append(*errs, FieldError{Field: path, Message: fmt.Sprintf(format, args...)})
	}
	if v == nil {
		add("is required")
		return
	}

	switch s.Type {
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			add("must be an object")
			return
		}
		for _, name := range s.propertyNames() {
			value, ok := obj[name]
			required := contains(s.Required, name)
			if !ok {
				if required {
					*errs = append(*errs, FieldError{Field: join(path, name), Message: "is required"})
				}
				continue
			}
			if value == nil && !required {
				continue
			}
			s.Properties[name].validate(join(path, name), value, errs)
		}
	case TypeArray:
		arr, ok := v.([]any)
		if !ok {
			add("must be an array")
			return
		}
		if s.MinItems > 0 && len(arr) < s.MinItems {
			add("must have at least %d items", s.MinItems)
		}
		if s.MaxItems > 0 && len(arr) > s.MaxItems {
			add("must have at most %d items", s.MaxItems)
		}
		if s.Items != nil {
			for i, item := range arr {
				s.Items.validate(path+"["+strconv.Itoa(i)+"]", item, errs)
			}
		}
	case TypeString:
		str, ok := v.(string)
		if !ok {
			add("must be a string")
			return
		}
		if s.MinLength > 0 && len(strings.TrimSpace(str)) < s.MinLength {
			add("must not be empty")
			return
		}
		if len(s.Enum) > 0 && !contains(s.Enum, str) {
			add("must be one of [%s]", strings.Join(s.Enum, ", "))
		}
		switch s.Format {
		case FormatDataURI:
			if !media.IsDataURI(str) {
				add("must be a data URI")
			}
		case FormatDate:
			if _, err := time.Parse("2006-01-02", str); err != nil {
				add("must be a date (YYYY-MM-DD)")
			}
		}
	case TypeInteger, TypeNumber:
		n, ok := v.(float64)
		if !ok {
			add("must be a %s", s.Type)
			return
		}
		if s.Type == TypeInteger && n != math.Trunc(n) {
			add("must be an integer")
			return
		}
		if s.Minimum != nil {
			if s.ExclusiveMinimum && n <= *s.Minimum {
				add("must be greater than %s", formatNumber(*s.Minimum))
			} else if !s.ExclusiveMinimum && n < *s.Minimum {
				add("must be at least %s", formatNumber(*s.Minimum))
			}
		}
		if s.Maximum != nil && n > *s.Maximum {
			add("must be at most %s", formatNumber(*s.Maximum))
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			add("must be a boolean")
		}
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
