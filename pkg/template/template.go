// Package template renders {{field}} placeholders in operator-authored
// message and webhook payloads from contact and execution data.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sequorhq/sequor/pkg/models"
)

// Placeholders are bare field names wrapped in double braces, as authored
// in the builder UI: "Hi {{name}}, your score is {{lead_score}}".
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// RenderForContact substitutes placeholders from the contact's fields and
// the execution's accumulated facts. Facts win over contact fields so a
// node can override what a later node sees. Unresolvable placeholders are
// left untouched rather than erased.
func RenderForContact(input string, contact *models.Contact, execution *models.Execution) string {
	if input == "" || !strings.Contains(input, "{{") {
		return input
	}

	var facts map[string]any
	if execution != nil {
		facts = execution.FactData()
	}

	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		field := placeholderPattern.FindStringSubmatch(match)[1]

		if facts != nil {
			if v, ok := facts[field]; ok {
				return stringify(v)
			}
		}

		if contact != nil {
			if v, ok := contact.Field(field); ok {
				return stringify(v)
			}
		}

		return match
	})
}

// Render substitutes placeholders from a flat data map.
func Render(input string, data map[string]any) string {
	if input == "" || !strings.Contains(input, "{{") {
		return input
	}

	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		field := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := data[field]; ok {
			return stringify(v)
		}

		return match
	})
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// Drop the fractional part for whole numbers so "{{lead_score}}"
		// renders as 75, not 75.000000.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}

		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
