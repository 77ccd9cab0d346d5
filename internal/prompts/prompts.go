// Package prompts holds small helpers for prompt templates: placeholder
// rendering, a rough token estimate and error message extraction.
package prompts

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/haasonsaas/promptlens/pkg/models"
)

// Render substitutes every {{name}} placeholder in the template with the
// matching variable. Placeholders without a variable are left as-is, and
// names are matched literally.
func Render(tmpl models.PromptTemplate) string {
	if len(tmpl.Variables) == 0 {
		return tmpl.Content
	}

	// A single Replacer pass means substituted values are never re-expanded.
	names := make([]string, 0, len(tmpl.Variables))
	for name := range tmpl.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "{{"+name+"}}", stringify(tmpl.Variables[name]))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl.Content)
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// tokensPerWord approximates the subword split of English text.
const tokensPerWord = 1.3

// EstimateTokens returns ceil(words * 1.3). It is a rough guide for budgeting,
// not a tokenizer. Blank text is zero tokens.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * tokensPerWord))
}

// UnknownError is returned by ParseAPIError when nothing better is available.
const UnknownError = "Unknown error occurred"

// ParseAPIError turns an error-ish value into a message for display.
func ParseAPIError(v any) string {
	switch val := v.(type) {
	case nil:
		return UnknownError
	case error:
		var msg interface{ Message() string }
		if errors.As(val, &msg) && msg.Message() != "" {
			return msg.Message()
		}
		return val.Error()
	case string:
		if val == "" {
			return UnknownError
		}
		return val
	default:
		return UnknownError
	}
}
