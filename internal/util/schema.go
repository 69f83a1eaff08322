package util

import (
	"fmt"
	"reflect"
	"strings"
)

// ValidationError reports a single offending field from parameter conversion.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ConvertParams validates raw arguments against a JSON-schema-like map and
// returns a new map containing only declared properties, with defaults
// applied. Unknown fields are dropped silently because backends may emit a
// superset of the declared schema. Any required-field or type mismatch fails
// with a *ValidationError; a partially converted map is never returned.
func ConvertParams(raw map[string]any, schema map[string]any) (map[string]any, error) {
	properties, _ := schema["properties"].(map[string]any)

	converted := make(map[string]any, len(properties))

	for _, fieldName := range requiredFields(schema) {
		if _, exists := raw[fieldName]; !exists {
			return nil, &ValidationError{
				Field:   fieldName,
				Message: "required field is missing",
			}
		}
	}

	for fieldName, propSchema := range properties {
		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}

		value, present := raw[fieldName]
		if !present {
			if def, hasDefault := propMap["default"]; hasDefault {
				converted[fieldName] = def
			}
			continue
		}

		if err := validateValue(fieldName, value, propMap); err != nil {
			return nil, err
		}

		converted[fieldName] = value
	}

	return converted, nil
}

// requiredFields tolerates both []string and []any shapes since schemas may
// be authored in Go or decoded from JSON.
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		fields := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	default:
		return nil
	}
}

func validateValue(fieldName string, value any, propMap map[string]any) error {
	expectedType, _ := propMap["type"].(string)
	if !isValidType(value, expectedType) {
		return &ValidationError{
			Field:   fieldName,
			Value:   value,
			Message: fmt.Sprintf("expected type %s, got %T", expectedType, value),
		}
	}

	if err := validateEnum(fieldName, value, propMap); err != nil {
		return err
	}

	if expectedType == "array" {
		if items, ok := propMap["items"].(map[string]any); ok {
			elems, _ := value.([]any)
			for i, elem := range elems {
				if err := validateValue(fmt.Sprintf("%s[%d]", fieldName, i), elem, items); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func validateEnum(fieldName string, value any, propMap map[string]any) error {
	var allowed []any
	switch enum := propMap["enum"].(type) {
	case []any:
		allowed = enum
	case []string:
		for _, s := range enum {
			allowed = append(allowed, s)
		}
	default:
		return nil
	}

	for _, candidate := range allowed {
		if reflect.DeepEqual(candidate, value) {
			return nil
		}
	}

	return &ValidationError{
		Field:   fieldName,
		Value:   value,
		Message: fmt.Sprintf("value not in enum %v", allowed),
	}
}

// CreateSchema creates a JSON schema from a Go struct using reflection.
// Convenience for capabilities whose argument shape is a plain struct.
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	properties := make(map[string]any)
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				fieldName = parts[0]
			}
		}

		fieldSchema := map[string]any{
			"type": getJSONType(field.Type),
		}

		if description := field.Tag.Get("description"); description != "" {
			fieldSchema["description"] = description
		}

		properties[fieldName] = fieldSchema

		if !hasOmitEmpty(field.Tag.Get("json")) && field.Type.Kind() != reflect.Ptr {
			required = append(required, fieldName)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// getJSONType returns the JSON schema type for a given Go type.
func getJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return getJSONType(t.Elem())
	default:
		return "string"
	}
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true // nil is valid for any type
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling produces float64 for numbers
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		switch value.(type) {
		case []any, []string:
			return true
		}
		return false
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true // Unknown types are assumed valid
	}
}
