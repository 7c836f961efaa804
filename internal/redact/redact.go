// Package redact masks credential values before they reach the terminal
// or a log line. The output artifacts on disk carry the real values; the
// screen never does, beyond enough of the token to recognize it.
package redact

import "strings"

// secret names whose values are always masked when echoed.
var secretFields = map[string]bool{
	"user_token":    true,
	"account_token": true,
	"openapi_token": true,
	"mqtt_password": true,
}

// IsSecret reports whether a field's value must be masked on screen.
func IsSecret(name string) bool { return secretFields[name] }

// Mask keeps the head and tail of a secret and elides the middle.
// Short values are fully masked; there is nothing recognizable to keep.
func Mask(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	head, tail := 8, 4
	if len(s) > 40 {
		head, tail = 16, 8
	}
	return s[:head] + "..." + s[len(s)-tail:]
}

// Field masks a value only when its field name is secret.
func Field(name, value string) string {
	if IsSecret(name) {
		return Mask(value)
	}
	return value
}
