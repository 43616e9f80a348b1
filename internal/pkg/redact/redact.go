// redact — маскировка чувствительных значений в логах.
package redact

import "strings"

// Email маскирует локальную часть адреса.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	if len(local) > 2 {
		local = local[:2] + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Username оставляет первые два символа.
func Username(s string) string {
	if len(s) > 2 {
		return s[:2] + "***"
	}

	return "***"
}

func Token() string    { return "[REDACTED_TOKEN]" }
func Password() string { return "[REDACTED_PASSWORD]" }
func Key() string      { return "[REDACTED_KEY]" }
