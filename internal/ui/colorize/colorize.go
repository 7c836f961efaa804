package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// getJSONStyle returns the response-echo style with fallbacks
func getJSONStyle() *chroma.Style {
	candidates := []string{"tarsier-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// IsDisabled returns true if colors are disabled via environment
func IsDisabled() bool {
	return os.Getenv("TARSIER_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

// JSON colorizes an API response body for the verbose echo
func JSON(body string) string {
	if IsDisabled() {
		return body
	}

	lexer := lexers.Get("json")
	if lexer == nil {
		return body
	}

	style := getJSONStyle()
	formatter := getTerminalFormatter()

	iterator, err := lexer.Tokenise(nil, body)
	if err != nil {
		return body
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return body
	}

	return strings.TrimSuffix(buf.String(), "\n")
}

// Header formats header text in blue
func Header(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;86;156;214m%s\033[0m", s)
}

// Step formats a step label in cyan
func Step(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;86;214;214m%s\033[0m", s)
}

// Success formats success markers in green
func Success(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;96;214;96m%s\033[0m", s)
}

// Warn formats warnings in yellow
func Warn(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;255;200;0m%s\033[0m", s)
}

// Error formats error messages in pink
func Error(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;255;128;192m%s\033[0m", s)
}

// Detail formats detail text in light gray
func Detail(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;180;180;180m%s\033[0m", s)
}

// Value formats recovered values in pink/magenta
func Value(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;255;128;192m%s\033[0m", s)
}

// Name formats field and profile names in yellow
func Name(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;255;200;0m%s\033[0m", s)
}

// Border formats border characters in dark gray
func Border(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;80;80;80m%s\033[0m", s)
}
