package submission

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/webhooker-io/webhooker/internal/domain"
)

// validate is the shared validator instance for field format checks.
var validate = validator.New()

// SortFields partitions a parsed payload against the endpoint's field
// definitions: keys matching a defined field name go to data, the rest to
// extras. With no field schema, or a non-object payload, the whole payload
// is data and extras is empty.
func SortFields(payload any, fields []domain.FieldDef) (data any, extras map[string]any) {
	obj, isObject := payload.(map[string]any)
	if fields == nil || !isObject {
		return payload, map[string]any{}
	}

	defined := make(map[string]bool, len(fields))
	for _, f := range fields {
		defined[f.Name] = true
	}

	dataMap := map[string]any{}
	extras = map[string]any{}
	for key, value := range obj {
		if defined[key] {
			dataMap[key] = value
		} else {
			extras[key] = value
		}
	}
	return dataMap, extras
}

// ValidateFields checks the sorted data against the field definitions and
// returns warnings. Submissions are never rejected for field problems; the
// warnings exist for endpoint owners debugging their forms.
func ValidateFields(data any, fields []domain.FieldDef) []string {
	obj, isObject := data.(map[string]any)
	if len(fields) == 0 || !isObject {
		return nil
	}

	var warnings []string
	for _, f := range fields {
		value, present := obj[f.Name]
		if !present {
			if f.Required {
				warnings = append(warnings, fmt.Sprintf("required field %q is missing", f.Name))
			}
			continue
		}
		if f.Required && isEmpty(value) {
			warnings = append(warnings, fmt.Sprintf("required field %q is empty", f.Name))
			continue
		}
		if isEmpty(value) {
			continue
		}
		if w := checkFormat(f, value); w != "" {
			warnings = append(warnings, w)
		}
	}
	return warnings
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// checkFormat validates typed fields: email, url, number, integer.
// Unknown types (and the default "text") accept anything.
func checkFormat(f domain.FieldDef, value any) string {
	switch f.Type {
	case "email":
		if err := validate.Var(asString(value), "email"); err != nil {
			return fmt.Sprintf("field %q is not a valid email address", f.Name)
		}
	case "url":
		if err := validate.Var(asString(value), "url"); err != nil {
			return fmt.Sprintf("field %q is not a valid URL", f.Name)
		}
	case "number":
		if !isNumber(value) {
			return fmt.Sprintf("field %q is not a number", f.Name)
		}
	case "integer":
		if !isInteger(value) {
			return fmt.Sprintf("field %q is not an integer", f.Name)
		}
	}
	return ""
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func isNumber(v any) bool {
	switch t := v.(type) {
	case json.Number, float64, int, int64:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return err == nil
	}
	return false
}

func isInteger(v any) bool {
	switch t := v.(type) {
	case int, int64:
		return true
	case float64:
		return t == float64(int64(t))
	case json.Number:
		_, err := t.Int64()
		return err == nil
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return err == nil
	}
	return false
}
