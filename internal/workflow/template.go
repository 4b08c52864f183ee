package workflow

import (
	"fmt"
	"regexp"
)

// inputPlaceholder matches `${{ inputs.name }}` with optional inner
// whitespace. Only the inputs namespace is supported.
var inputPlaceholder = regexp.MustCompile(`\$\{\{\s*inputs\.([A-Za-z0-9_-]+)\s*\}\}`)

// SubstituteInputs replaces `${{ inputs.X }}` placeholders in text with
// the corresponding session input values. Placeholders without a matching
// input are left untouched so the agent can see what is missing.
func SubstituteInputs(text string, inputs map[string]any) string {
	if len(inputs) == 0 {
		return text
	}
	return inputPlaceholder.ReplaceAllStringFunc(text, func(match string) string {
		name := inputPlaceholder.FindStringSubmatch(match)[1]
		value, ok := inputs[name]
		if !ok {
			return match
		}
		return fmt.Sprint(value)
	})
}
