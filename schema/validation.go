package schema

import (
	"fmt"
	"strings"
)

// Schema type names.
const (
	typeObject  = "object"
	typeArray   = "array"
	typeString  = "string"
	typeInteger = "integer"
	typeNumber  = "number"
	typeBoolean = "boolean"
)

// ValidationError describes a single invalid argument.
type ValidationError struct {
	Path    string // path to the invalid field, e.g. "user.email"
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate checks tool arguments against the schema. A nil schema, or a
// schema with no type, accepts anything — the server is the final
// authority. Returns nil when valid, ValidationErrors otherwise.
func (s *Schema) Validate(args map[string]any) error {
	if s == nil || s.Type == "" {
		return nil
	}

	var errs ValidationErrors
	s.validate("", args, &errs)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *Schema) validate(path string, value any, errs *ValidationErrors) {
	if value == nil {
		return
	}

	switch s.Type {
	case typeObject:
		s.validateObject(path, value, errs)
	case typeArray:
		s.validateArray(path, value, errs)
	case typeString:
		s.validateString(path, value, errs)
	case typeInteger:
		s.validateNumeric(path, value, true, errs)
	case typeNumber:
		s.validateNumeric(path, value, false, errs)
	case typeBoolean:
		if _, ok := value.(bool); !ok {
			*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf("expected boolean, got %T", value)})
		}
	}
}

func (s *Schema) validateObject(path string, value any, errs *ValidationErrors) {
	obj, ok := value.(map[string]any)
	if !ok {
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf("expected object, got %T", value)})
		return
	}

	for _, req := range s.Required {
		if _, exists := obj[req]; !exists {
			*errs = append(*errs, &ValidationError{Path: joinPath(path, req), Message: "required field is missing"})
		}
	}

	// Properties not declared in the schema are passed through untouched.
	for name, propSchema := range s.Properties {
		if val, exists := obj[name]; exists {
			propSchema.validate(joinPath(path, name), val, errs)
		}
	}
}

func (s *Schema) validateArray(path string, value any, errs *ValidationErrors) {
	items, ok := value.([]any)
	if !ok {
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf("expected array, got %T", value)})
		return
	}
	if s.Items == nil {
		return
	}
	for i, item := range items {
		s.Items.validate(fmt.Sprintf("%s[%d]", path, i), item, errs)
	}
}

func (s *Schema) validateString(path string, value any, errs *ValidationErrors) {
	str, ok := value.(string)
	if !ok {
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf("expected string, got %T", value)})
		return
	}

	if len(s.Enum) > 0 {
		for _, e := range s.Enum {
			if e == str {
				return
			}
		}
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf("value must be one of: %v", s.Enum)})
	}
}

func (s *Schema) validateNumeric(path string, value any, integer bool, errs *ValidationErrors) {
	var num float64
	switch v := value.(type) {
	case float64:
		num = v
		if integer && num != float64(int64(num)) {
			*errs = append(*errs, &ValidationError{Path: path, Message: "expected integer, got decimal number"})
			return
		}
	case float32:
		num = float64(v)
	case int:
		num = float64(v)
	case int64:
		num = float64(v)
	default:
		kind := typeNumber
		if integer {
			kind = typeInteger
		}
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf("expected %s, got %T", kind, value)})
		return
	}

	if s.Minimum != nil && num < *s.Minimum {
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf("value %v is less than minimum %v", num, *s.Minimum)})
	}
	if s.Maximum != nil && num > *s.Maximum {
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf("value %v is greater than maximum %v", num, *s.Maximum)})
	}
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}
