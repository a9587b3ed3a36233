package errors

import "strings"

// maxDetailStringLen bounds string values in sanitized payloads.
const maxDetailStringLen = 512

// sensitiveKeys are stripped from any client-visible data payload.
var sensitiveKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "auth_header", "credential", "connection_string",
	"connection_url", "dsn", "private_key", "access_key", "session",
	"cookie", "bearer",
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// SanitizeMap returns a copy of m with sensitive keys removed, long string
// values truncated, and nested maps sanitized recursively.
func SanitizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if len(val) > maxDetailStringLen {
			return val[:maxDetailStringLen] + "...(truncated)"
		}
		return val
	case map[string]interface{}:
		return SanitizeMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}
