// Package masking hides most of a display name before it is shown publicly.
package masking

import "strings"

const maskRune = '*'

// Mask keeps the first and last rune of name and replaces the rest with '*'.
// Names of one rune are returned unchanged; two-rune names keep only the first.
func Mask(name string) string {
	runes := []rune(name)
	n := len(runes)
	switch {
	case n <= 1:
		return name
	case n == 2:
		return string(runes[0]) + string(maskRune)
	}

	var b strings.Builder
	b.Grow(len(name))
	b.WriteRune(runes[0])
	for range n - 2 {
		b.WriteRune(maskRune)
	}
	b.WriteRune(runes[n-1])
	return b.String()
}
