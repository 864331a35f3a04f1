package config

import "fmt"

// String reads a string from an inline config map
func String(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// StringOr reads a string, falling back to def when missing or empty
func StringOr(m map[string]interface{}, key, def string) string {
	if v := String(m, key); v != "" {
		return v
	}
	return def
}

// Int reads an integer from an inline config map
func Int(m map[string]interface{}, key string, def int) (int, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, raw)
	}
}

// Bool reads a boolean from an inline config map
func Bool(m map[string]interface{}, key string) bool {
	v, _ := m[key].(bool)
	return v
}
