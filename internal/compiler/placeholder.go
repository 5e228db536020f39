package compiler

import "regexp"

// placeholderRe finds `{{ name }}` placeholders, the usual Mustache-style
// template/prompt placeholder convention.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// placeholderNames returns the distinct placeholder names referenced by src,
// in first-seen order.
func placeholderNames(src string) []string {
	matches := placeholderRe.FindAllStringSubmatch(src, -1)
	seen := map[string]bool{}
	var names []string
	for _, m := range matches {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// renderPlaceholders substitutes every `{{ name }}` with its bound value's
// string form, rendering unresolved placeholders as empty text (the
// template-cell missing-placeholder behavior).
func renderPlaceholders(src string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(src, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		if sub == nil {
			return ""
		}
		return values[sub[1]]
	})
}
