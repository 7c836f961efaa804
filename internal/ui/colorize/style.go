// Package colorize provides colored terminal output for the operator-
// facing pipeline steps and the verbose API response echo.
package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// TarsierDark is the style used for JSON response echoes: keys in blue,
// strings in green, numbers in pink on a dark terminal.
var TarsierDark = styles.Register(chroma.MustNewStyle("tarsier-dark", chroma.StyleEntries{
	chroma.Text:       "#FFFFFF",
	chroma.Background: "bg:#000000",

	chroma.NameTag:         "#569CD6", // JSON keys
	chroma.Name:            "#87CEEB",
	chroma.Keyword:         "#569CD6", // true/false/null
	chroma.KeywordConstant: "#569CD6",

	chroma.LiteralNumber:        "#FF80C0",
	chroma.LiteralNumberInteger: "#FF80C0",
	chroma.LiteralNumberFloat:   "#FF80C0",

	chroma.String:              "#00FF00",
	chroma.LiteralStringDouble: "#00FF00",

	chroma.Operator:    "#FFFFFF",
	chroma.Punctuation: "#FFFFFF",
}))
