package casing

import (
	"strings"
	"unicode"
)

func ToKebabCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		switch {
		case r == '_' || r == ' ':
			result.WriteRune('-')
		case i > 0 && unicode.IsUpper(r):
			// a new word starts after a lowercase letter, or before one in a run of capitals
			if unicode.IsLower(rune(s[i-1])) ||
				(i+1 < len(s) && unicode.IsLower(rune(s[i+1]))) {
				result.WriteRune('-')
			}
			result.WriteRune(unicode.ToLower(r))
		default:
			result.WriteRune(unicode.ToLower(r))
		}
	}
	return result.String()
}

func ToSnakeCase(s string) string {
	return strings.ReplaceAll(ToKebabCase(s), "-", "_")
}

// ToPascalCase turns orderItem, order_item and order-item into OrderItem.
func ToPascalCase(s string) string {
	var result strings.Builder
	for _, word := range strings.Split(ToKebabCase(s), "-") {
		if word == "" {
			continue
		}
		runes := []rune(word)
		result.WriteRune(unicode.ToUpper(runes[0]))
		result.WriteString(string(runes[1:]))
	}
	return result.String()
}

func KebabToTitleCase(s string) string {
	var result strings.Builder
	capitalize := true

	for _, r := range s {
		switch {
		case r == '-':
			result.WriteRune(' ')
			capitalize = true
		case capitalize:
			result.WriteRune(unicode.ToUpper(r))
			capitalize = false
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}
