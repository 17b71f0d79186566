package submission

import "strings"

// IsSpam reports whether the payload trips the endpoint's honeypot: a
// non-empty value at the configured field name. Bots auto-fill hidden
// fields; humans never see them.
func IsSpam(payload any, honeypotField string) bool {
	if honeypotField == "" {
		return false
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	value, present := obj[honeypotField]
	if !present || value == nil {
		return false
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	// Any non-string, non-null value counts as filled in.
	return true
}
