// Package dateformat is the raw-character fallback for date detection in
// custom number-format strings, used when the nfp tokenizer cannot make
// sense of the input.  All callers are within the same module.
package dateformat

// Scan scans the unquoted portion of a custom number-format string for
// date/time token characters.
//
// The characters d, m, y, h, s (either case) count as date/time tokens
// when they appear outside double-quoted literals and outside
// square-bracket sections.  e/E counts only when it is not acting as a
// scientific-notation exponent marker, i.e. not preceded by a digit
// placeholder (0, #, ?, or .).
func Scan(format string) bool {
	inQuote := false
	inBracket := false
	var prev rune
	for _, ch := range format {
		switch {
		case inQuote:
			if ch == '"' {
				inQuote = false
			}
		case inBracket:
			if ch == ']' {
				inBracket = false
			}
		case ch == '"':
			inQuote = true
		case ch == '[':
			inBracket = true
		case ch == 'd' || ch == 'D' ||
			ch == 'm' || ch == 'M' ||
			ch == 'y' || ch == 'Y' ||
			ch == 'h' || ch == 'H' ||
			ch == 's' || ch == 'S':
			return true
		case ch == 'e' || ch == 'E':
			if prev != '0' && prev != '#' && prev != '?' && prev != '.' {
				return true
			}
		}
		if !inQuote && !inBracket {
			prev = ch
		}
	}
	return false
}
