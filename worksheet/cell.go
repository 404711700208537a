package worksheet

import (
	"github.com/TsubasaBE/go-xlsx/stringpool"
	"github.com/TsubasaBE/go-xlsx/styles"
)

// Kind discriminates the value variants a cell can hold.
type Kind uint8

const (
	// KindEmpty is a cell with no value.  Such a cell exists in the store
	// only while it carries a non-default style or metadata.
	KindEmpty Kind = iota
	// KindNumber is an IEEE-754 double.
	KindNumber
	// KindBool is a boolean.
	KindBool
	// KindString is text, interned into the workbook pool regardless of
	// whether the file stored it shared or inline.
	KindString
	// KindFormula is formula text with an optional cached result.
	KindFormula
	// KindDate is an ISO-8601 date string (cells written with t="d").
	KindDate
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindFormula:
		return "formula"
	case KindDate:
		return "date"
	}
	return "invalid"
}

// Value is a tagged cell value.  Build one with the constructors; the zero
// Value is empty.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	var n float64
	if b {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Date returns a typed date value carrying an ISO-8601 string.
func Date(iso string) Value { return Value{kind: KindDate, str: iso} }

// Formula returns a formula value.  The text excludes the leading "=".
func Formula(expr string) Value { return Value{kind: KindFormula, str: expr} }

// Empty returns the empty value.
func Empty() Value { return Value{} }

// Kind returns the value's variant.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the value is the empty variant.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// Float returns the numeric payload.  It is 0 for non-numeric variants and
// 0/1 for booleans.
func (v Value) Float() float64 { return v.num }

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.kind == KindBool && v.num != 0 }

// Text returns the string payload of string, date, and formula variants.
func (v Value) Text() string { return v.str }

// Equal reports structural equality of two values.
func (v Value) Equal(o Value) bool { return v == o }

// cell is the stored record.  The hot fields cover the common case of a
// plain value with an optional style; everything rare lives behind the
// cold pointer so a numeric cell costs no string headers.
type cell struct {
	kind  Kind
	num   float64
	str   stringpool.Handle
	style styles.Handle
	cold  *coldCell
}

// coldCell holds the rarely populated metadata of a cell.
type coldCell struct {
	formula   string
	cached    Value  // cached formula result, empty when none
	numFmt    string // explicit number-format override
	typeHint  string // preserved t= attribute when not inferable
	hasCached bool
}

// isDefault reports whether the record carries nothing worth storing.
func (c cell) isDefault() bool {
	return c.kind == KindEmpty && c.style == styles.Default && c.cold == nil
}

// ensureCold returns the record's cold block, allocating it on first use.
func (c *cell) ensureCold() *coldCell {
	if c.cold == nil {
		c.cold = &coldCell{}
	}
	return c.cold
}

// clearFormula removes formula metadata when a plain value replaces a
// formula cell.
func (c *cell) clearFormula() {
	if c.cold == nil {
		return
	}
	c.cold.formula = ""
	c.cold.cached = Value{}
	c.cold.hasCached = false
	c.trimCold()
}

// trimCold drops a cold block that has reverted to all defaults.
func (c *cell) trimCold() {
	if c.cold != nil && *c.cold == (coldCell{}) {
		c.cold = nil
	}
}

// CellView is the read surface of one cell.  Absent cells read as the
// default view: empty value, default style, no metadata.
type CellView struct {
	Row uint32
	Col uint32
	// Value is the cell's typed value.  For formula cells it is the cached
	// result (empty when the file carried none); Formula holds the text.
	Value Value
	// Style is the xf handle, 0 for the default style.
	Style styles.Handle
	// Formula is the formula text, empty for non-formula cells.
	Formula string
	// NumberFormat is the explicit per-cell number-format override, empty
	// when the cell follows its style.
	NumberFormat string
	// TypeHint preserves the cell's t= attribute when it cannot be
	// re-inferred from the value (error cells, unknown types).
	TypeHint string
}

// IsEmpty reports whether the view describes a cell with no value, style,
// or metadata.
func (v CellView) IsEmpty() bool {
	return v.Value.IsEmpty() && v.Style == styles.Default &&
		v.Formula == "" && v.NumberFormat == "" && v.TypeHint == ""
}
