// Package cellref parses and formats A1-style cell references.
//
// All parsers operate on byte slices without allocating.  Coordinates are
// 1-based: row 1, column 1 is "A1".  The format maxima are Excel's
// 1,048,576 rows by 16,384 columns ("XFD").  Lowercase column letters are
// accepted and canonicalized to uppercase on formatting.
package cellref

import (
	"strconv"
	"strings"

	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

// Excel format maxima (ECMA-376 §18.3.1.73: the worksheet grid).
const (
	// MaxRow is the largest valid 1-based row number.
	MaxRow = 1_048_576
	// MaxCol is the largest valid 1-based column number ("XFD").
	MaxCol = 16_384
)

// ParseBytes parses an A1-style reference from b and returns the 1-based
// (row, col).  It returns ok=false on empty input, non-alphanumeric bytes,
// a missing row or column part, or values exceeding the format maxima.
func ParseBytes(b []byte) (row, col uint32, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}

	i := 0
	for i < len(b) {
		c := b[i]
		switch {
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		case c >= 'A' && c <= 'Z':
		default:
			goto digits
		}
		col = col*26 + uint32(c-'A'+1)
		if col > MaxCol {
			return 0, 0, false
		}
		i++
	}
digits:
	if i == 0 || i == len(b) || col == 0 {
		return 0, 0, false
	}
	for ; i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			return 0, 0, false
		}
		row = row*10 + uint32(c-'0')
		if row > MaxRow {
			return 0, 0, false
		}
	}
	if row == 0 {
		return 0, 0, false
	}
	return row, col, true
}

// Parse parses an A1-style reference string.  Surrounding ASCII space is
// ignored.  It fails with an InvalidCoordinate error.
func Parse(ref string) (row, col uint32, err error) {
	trimmed := strings.TrimSpace(ref)
	row, col, ok := ParseBytes([]byte(trimmed))
	if !ok {
		return 0, 0, xlsxerr.New(xlsxerr.InvalidCoordinate, "invalid cell reference %q", ref)
	}
	return row, col, nil
}

// ParseUint parses an unsigned decimal integer from b, rejecting empty
// input, non-digit bytes, and uint32 overflow.
func ParseUint(b []byte) (uint32, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
		if v > 1<<32-1 {
			return 0, false
		}
	}
	return uint32(v), true
}

// ParseFloat parses an IEEE-754 double from b.  Plain unsigned integers take
// a digit-accumulation fast path; everything else goes through strconv.
func ParseFloat(b []byte) (float64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	allDigits := true
	for _, c := range b {
		if c < '0' || c > '9' {
			allDigits = false
			break
		}
	}
	// The fast path is exact only while the value fits in the 53-bit
	// mantissa; longer digit runs fall through to strconv for correct
	// rounding.
	if allDigits && len(b) <= 15 {
		var v float64
		for _, c := range b {
			v = v*10 + float64(c-'0')
		}
		return v, true
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ColumnNumber converts column letters ("A".."XFD", case-insensitive) to a
// 1-based column number.
func ColumnNumber(letters string) (uint32, error) {
	var col uint32
	for i := 0; i < len(letters); i++ {
		c := letters[i]
		switch {
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		case c >= 'A' && c <= 'Z':
		default:
			return 0, xlsxerr.New(xlsxerr.InvalidCoordinate, "invalid character %q in column %q", c, letters)
		}
		col = col*26 + uint32(c-'A'+1)
		if col > MaxCol {
			return 0, xlsxerr.New(xlsxerr.InvalidCoordinate, "column %q exceeds maximum XFD", letters)
		}
	}
	if col == 0 {
		return 0, xlsxerr.New(xlsxerr.InvalidCoordinate, "empty column letters")
	}
	return col, nil
}

// ColumnLetters converts a 1-based column number to its letters
// (1 → "A", 28 → "AB", 16384 → "XFD").
func ColumnLetters(col uint32) string {
	// Three letters suffice for the full column range.
	var buf [3]byte
	i := len(buf)
	for col > 0 {
		col--
		i--
		buf[i] = byte('A' + col%26)
		col /= 26
	}
	return string(buf[i:])
}

// Format renders a 1-based (row, col) pair as an A1-style reference.
func Format(row, col uint32) string {
	return ColumnLetters(col) + strconv.FormatUint(uint64(row), 10)
}

// AppendFormat appends the A1-style reference for (row, col) to dst and
// returns the extended slice.  Used by the serializers to avoid per-cell
// string allocation.
func AppendFormat(dst []byte, row, col uint32) []byte {
	var letters [3]byte
	i := len(letters)
	for col > 0 {
		col--
		i--
		letters[i] = byte('A' + col%26)
		col /= 26
	}
	dst = append(dst, letters[i:]...)
	return strconv.AppendUint(dst, uint64(row), 10)
}

// ParseRange parses an "A1:B10" range into its corners.  A single reference
// is accepted as a degenerate range with equal corners.
func ParseRange(ref string) (r1, c1, r2, c2 uint32, err error) {
	colon := strings.IndexByte(ref, ':')
	if colon < 0 {
		r1, c1, err = Parse(ref)
		return r1, c1, r1, c1, err
	}
	if r1, c1, err = Parse(ref[:colon]); err != nil {
		return 0, 0, 0, 0, err
	}
	if r2, c2, err = Parse(ref[colon+1:]); err != nil {
		return 0, 0, 0, 0, err
	}
	if r2 < r1 || c2 < c1 {
		return 0, 0, 0, 0, xlsxerr.New(xlsxerr.InvalidCoordinate, "inverted range %q", ref)
	}
	return r1, c1, r2, c2, nil
}

// FormatRange renders the corner pair as an "A1:B10" reference.
func FormatRange(r1, c1, r2, c2 uint32) string {
	return Format(r1, c1) + ":" + Format(r2, c2)
}
