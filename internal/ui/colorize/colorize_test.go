package colorize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDisabled(t *testing.T) {
	t.Setenv("TARSIER_NO_COLOR", "")
	t.Setenv("NO_COLOR", "")
	assert.False(t, IsDisabled())

	t.Setenv("NO_COLOR", "1")
	assert.True(t, IsDisabled())

	t.Setenv("NO_COLOR", "")
	t.Setenv("TARSIER_NO_COLOR", "1")
	assert.True(t, IsDisabled())
}

func TestDisabledPassesThrough(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	for name, fn := range map[string]func(string) string{
		"Header":  Header,
		"Step":    Step,
		"Success": Success,
		"Warn":    Warn,
		"Error":   Error,
		"Detail":  Detail,
		"Value":   Value,
		"Name":    Name,
		"Border":  Border,
		"JSON":    JSON,
	} {
		assert.Equal(t, "plain", fn("plain"), name)
	}
}

func TestEnabledWrapsInAnsi(t *testing.T) {
	t.Setenv("TARSIER_NO_COLOR", "")
	t.Setenv("NO_COLOR", "")

	for name, fn := range map[string]func(string) string{
		"Value":  Value,
		"Border": Border,
		"Name":   Name,
	} {
		got := fn("x")
		assert.True(t, strings.HasPrefix(got, "\033["), name)
		assert.True(t, strings.HasSuffix(got, "\033[0m"), name)
		assert.Contains(t, got, "x", name)
	}
}

func TestJSONKeepsContent(t *testing.T) {
	t.Setenv("TARSIER_NO_COLOR", "")
	t.Setenv("NO_COLOR", "")

	out := JSON(`{"result":{"code":0}}`)
	assert.Contains(t, out, "result")
	assert.Contains(t, out, "code")
}
