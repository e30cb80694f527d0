package campaign

import (
	"fmt"
	"strconv"
	"strings"
)

// RenderTemplate splices substitution values into a vendor template body.
// Placeholders use fixed two-character brackets ({{token}}) and each token is
// replaced at its first occurrence in a single left-to-right pass. This is a
// textual splice, not a templating engine: a token that is a substring of
// another token can mis-splice, so datasource columns should use distinct
// names.
func RenderTemplate(text string, values map[string]interface{}) string {
	if text == "" || len(values) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	for {
		open := strings.Index(text, "{{")
		if open < 0 {
			b.WriteString(text)
			break
		}
		close := strings.Index(text[open:], "}}")
		if close < 0 {
			b.WriteString(text)
			break
		}
		close += open

		token := text[open+2 : close]
		b.WriteString(text[:open])
		if value, ok := values[token]; ok {
			b.WriteString(stringify(value))
		} else {
			// Unknown tokens pass through untouched.
			b.WriteString(text[open : close+2])
		}
		text = text[close+2:]
	}

	return b.String()
}

// TemplateParams extracts the substitution value for each {{token}} in the
// template text, in order of appearance, for vendor template APIs that take
// positional body parameters. Unknown tokens yield empty strings.
func TemplateParams(text string, values map[string]interface{}) []string {
	var params []string
	for {
		open := strings.Index(text, "{{")
		if open < 0 {
			break
		}
		close := strings.Index(text[open:], "}}")
		if close < 0 {
			break
		}
		close += open

		token := text[open+2 : close]
		if value, ok := values[token]; ok {
			params = append(params, stringify(value))
		} else {
			params = append(params, "")
		}
		text = text[close+2:]
	}
	return params
}

// stringify renders a datasource cell value as message text. Spreadsheet
// numerics arrive as float64 from JSONB; FormatFloat with -1 precision keeps
// whole numbers free of a trailing ".0".
func stringify(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}
