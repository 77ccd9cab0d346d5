package interceptor

import (
	"strings"

	"github.com/haasonsaas/promptlens/pkg/models"
)

// ResolveModel picks the metric model label for a call: the model named by
// the first argument, else a string second argument, else fallback, else
// models.UnknownModel.
func ResolveModel(args []any, fallback string) string {
	if len(args) > 0 {
		if m := strings.TrimSpace(Classify(args[0]).Model()); m != "" {
			return m
		}
	}
	if len(args) > 1 {
		if m, ok := args[1].(string); ok && strings.TrimSpace(m) != "" {
			return strings.TrimSpace(m)
		}
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return models.UnknownModel
}

// substituteArgs returns a copy of args with the prompt written into the
// first argument.
func substituteArgs(args []any, prompt string) []any {
	if len(args) == 0 {
		return args
	}
	out := make([]any, len(args))
	copy(out, args)
	out[0] = Classify(args[0]).Substitute(prompt)
	return out
}
