// Package formula implements the two pieces of formula plumbing the codec
// needs: relative-reference translation for shared formulas, and reference
// resolution for defined names.
//
// Formulas are never evaluated.  Translation rewrites the reference tokens
// of a master formula in place, byte-faithfully preserving everything
// else, which is why it runs on a dedicated scanner rather than a general
// formula parser: a token-stream round trip would normalize spacing and
// separators.  Defined-name resolution, where only the reference itself
// matters, is delegated to [github.com/xuri/efp].
package formula

import (
	"strconv"
	"strings"

	"github.com/xuri/efp"

	"github.com/TsubasaBE/go-xlsx/cellref"
	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

// Translate produces a derivative cell's formula from its shared-formula
// master by offsetting every relative reference by (dRow, dCol).  Absolute
// components (prefixed $) do not shift.  References inside string literals
// and quoted sheet names are left untouched.
//
// A shift that would move a reference outside the sheet grid fails with
// InvalidFormat.
func Translate(master string, dRow, dCol int64) (string, error) {
	if dRow == 0 && dCol == 0 {
		return master, nil
	}
	var out strings.Builder
	out.Grow(len(master) + 8)

	i := 0
	n := len(master)
	for i < n {
		c := master[i]
		switch {
		case c == '"':
			// String literal: copy through the closing quote, honoring the
			// doubled-quote escape.
			j := i + 1
			for j < n {
				if master[j] == '"' {
					if j+1 < n && master[j+1] == '"' {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			out.WriteString(master[i:j])
			i = j
		case c == '\'':
			// Quoted sheet name: copy through the closing quote.
			j := i + 1
			for j < n {
				if master[j] == '\'' {
					j++
					break
				}
				j++
			}
			out.WriteString(master[i:j])
			i = j
		case c == '$' || isLetter(c):
			start := i
			ref, width, ok := scanRef(master, i)
			if !ok {
				// Not a reference: copy the name run verbatim.  The run stops
				// before '!' and '(' so a sheet qualifier or function call does
				// not swallow the reference that follows it.
				j := i
				for j < n && isNameByte(master[j]) {
					j++
				}
				if j == i {
					j++ // lone '$'
				}
				out.WriteString(master[start:j])
				i = j
				continue
			}
			shifted, err := shift(ref, dRow, dCol)
			if err != nil {
				return "", err
			}
			out.WriteString(shifted)
			i += width
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}

// ref is one scanned A1-style reference.
type ref struct {
	absCol bool
	absRow bool
	col    uint32
	row    uint32
}

// scanRef tries to read a {$?}COL{$?}ROW reference at s[i:].  It refuses
// candidates that are part of a longer identifier (function names like
// LOG10, table names) by checking the byte that follows.
func scanRef(s string, i int) (ref, int, bool) {
	n := len(s)
	j := i
	var r ref
	if j < n && s[j] == '$' {
		r.absCol = true
		j++
	}
	colStart := j
	for j < n && isLetter(s[j]) {
		j++
	}
	if j == colStart || j-colStart > 3 {
		return ref{}, 0, false
	}
	col, err := cellref.ColumnNumber(s[colStart:j])
	if err != nil {
		return ref{}, 0, false
	}
	if j < n && s[j] == '$' {
		r.absRow = true
		j++
	}
	rowStart := j
	for j < n && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == rowStart || j-rowStart > 7 {
		return ref{}, 0, false
	}
	row64, parseErr := strconv.ParseUint(s[rowStart:j], 10, 32)
	if parseErr != nil || row64 == 0 || row64 > cellref.MaxRow {
		return ref{}, 0, false
	}
	// A trailing identifier byte means this was a name, not a reference
	// (e.g. ABC1DEF, R1C1-style text, defined names ending in digits).
	if j < n && isIdentByte(s[j]) {
		return ref{}, 0, false
	}
	r.col = col
	r.row = uint32(row64)
	return r, j - i, true
}

// shift applies the offsets and re-renders the reference.
func shift(r ref, dRow, dCol int64) (string, error) {
	row := int64(r.row)
	col := int64(r.col)
	if !r.absRow {
		row += dRow
	}
	if !r.absCol {
		col += dCol
	}
	if row < 1 || row > cellref.MaxRow || col < 1 || col > cellref.MaxCol {
		return "", xlsxerr.New(xlsxerr.InvalidFormat,
			"shared formula reference %s shifted outside the sheet grid", cellref.Format(r.row, r.col))
	}
	var b strings.Builder
	if r.absCol {
		b.WriteByte('$')
	}
	b.WriteString(cellref.ColumnLetters(uint32(col)))
	if r.absRow {
		b.WriteByte('$')
	}
	b.WriteString(strconv.FormatInt(row, 10))
	return b.String(), nil
}

func isLetter(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

// isIdentByte reports whether c would extend a reference candidate into a
// longer name (including a sheet qualifier or function call).
func isIdentByte(c byte) bool {
	return isNameByte(c) || c == '!' || c == '('
}

// isNameByte reports whether c belongs to a plain identifier run.
func isNameByte(c byte) bool {
	return isLetter(c) || c >= '0' && c <= '9' || c == '_' || c == '.'
}

// SplitRef resolves a defined-name reference into its sheet qualifier and
// range text, e.g. "'My Sheet'!$B$2:$C$4" → ("My Sheet", "$B$2:$C$4").
// References that efp cannot read as a single range operand (unions,
// expressions, #REF! errors) return ok=false; callers keep the opaque
// text.
func SplitRef(reference string) (sheet, rangeRef string, ok bool) {
	parser := efp.ExcelParser()
	tokens := parser.Parse(reference)
	if len(tokens) != 1 {
		return "", "", false
	}
	tok := tokens[0]
	if tok.TType != efp.TokenTypeOperand || tok.TSubType != efp.TokenSubTypeRange {
		return "", "", false
	}
	val := tok.TValue
	if bang := strings.LastIndexByte(val, '!'); bang >= 0 {
		sheet = strings.Trim(val[:bang], "'")
		rangeRef = val[bang+1:]
	} else {
		rangeRef = val
	}
	if rangeRef == "" {
		return "", "", false
	}
	return sheet, rangeRef, true
}
