package worksheet

import (
	"sort"

	"github.com/TsubasaBE/go-xlsx/cellref"
	"github.com/TsubasaBE/go-xlsx/stringpool"
	"github.com/TsubasaBE/go-xlsx/styles"
	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

// Key packs a 1-based (row, col) address into one comparable word.  Rows
// occupy the high half, so the natural uint64 order is row-major order.
type Key uint64

// MakeKey packs row and col.  Callers must have validated the coordinates.
func MakeKey(row, col uint32) Key { return Key(row)<<32 | Key(col) }

// Row returns the 1-based row of k.
func (k Key) Row() uint32 { return uint32(k >> 32) }

// Col returns the 1-based column of k.
func (k Key) Col() uint32 { return uint32(k) }

// checkCoord validates a 1-based coordinate pair against the grid maxima.
func checkCoord(row, col uint32) error {
	if row == 0 || row > cellref.MaxRow || col == 0 || col > cellref.MaxCol {
		return xlsxerr.New(xlsxerr.InvalidCoordinate, "cell (%d, %d) outside the sheet grid", row, col)
	}
	return nil
}

// Get returns a view of the cell at (row, col).  Absent cells yield the
// default view rather than an error; only invalid coordinates fail.
func (ws *Worksheet) Get(row, col uint32) (CellView, error) {
	if err := checkCoord(row, col); err != nil {
		return CellView{}, err
	}
	return ws.view(row, col, ws.cells[MakeKey(row, col)]), nil
}

// GetRef is Get addressed by an A1-style reference.
func (ws *Worksheet) GetRef(ref string) (CellView, error) {
	row, col, err := cellref.Parse(ref)
	if err != nil {
		return CellView{}, err
	}
	return ws.Get(row, col)
}

func (ws *Worksheet) view(row, col uint32, c cell) CellView {
	v := CellView{Row: row, Col: col, Style: c.style}
	switch c.kind {
	case KindNumber:
		v.Value = Number(c.num)
	case KindBool:
		v.Value = Bool(c.num != 0)
	case KindString:
		v.Value = String(ws.pool.Resolve(c.str))
	case KindDate:
		v.Value = Date(ws.pool.Resolve(c.str))
	case KindFormula:
		if c.cold != nil {
			v.Formula = c.cold.formula
			if c.cold.hasCached {
				v.Value = c.cold.cached
			}
		}
	}
	if c.cold != nil {
		if c.kind != KindFormula && c.cold.formula != "" {
			v.Formula = c.cold.formula
		}
		v.NumberFormat = c.cold.numFmt
		v.TypeHint = c.cold.typeHint
	}
	return v
}

// SetValue inserts or mutates the cell at (row, col), keeping any existing
// style and metadata.  Setting the empty value on a cell with default
// style and no metadata removes the record.
func (ws *Worksheet) SetValue(row, col uint32, val Value) error {
	if err := checkCoord(row, col); err != nil {
		return err
	}
	k := MakeKey(row, col)
	c := ws.cells[k]
	switch val.kind {
	case KindEmpty:
		c.kind = KindEmpty
		c.num = 0
		c.str = stringpool.Empty
		c.clearFormula()
	case KindNumber, KindBool:
		c.kind = val.kind
		c.num = val.num
		c.str = stringpool.Empty
		c.clearFormula()
	case KindString, KindDate:
		c.kind = val.kind
		c.num = 0
		c.str = ws.pool.Intern(val.str)
		c.clearFormula()
	case KindFormula:
		c.kind = KindFormula
		c.num = 0
		c.str = stringpool.Empty
		cold := c.ensureCold()
		cold.formula = val.str
		cold.cached = Value{}
		cold.hasCached = false
	}
	ws.put(k, c)
	return nil
}

// SetRef is SetValue addressed by an A1-style reference.
func (ws *Worksheet) SetRef(ref string, val Value) error {
	row, col, err := cellref.Parse(ref)
	if err != nil {
		return err
	}
	return ws.SetValue(row, col, val)
}

// SetStyle binds the cell at (row, col) to the xf handle h.  Setting the
// default handle on a cell with no value removes the record; a styled cell
// keeps its value when the style is cleared.
func (ws *Worksheet) SetStyle(row, col uint32, h styles.Handle) error {
	if err := checkCoord(row, col); err != nil {
		return err
	}
	k := MakeKey(row, col)
	c := ws.cells[k]
	c.style = h
	ws.put(k, c)
	return nil
}

// SetRangeStyle binds every cell of the range to h, materializing records
// for cells that did not exist.
func (ws *Worksheet) SetRangeStyle(r1, c1, r2, c2 uint32, h styles.Handle) error {
	if err := checkCoord(r1, c1); err != nil {
		return err
	}
	if err := checkCoord(r2, c2); err != nil {
		return err
	}
	if r2 < r1 || c2 < c1 {
		return xlsxerr.New(xlsxerr.InvalidCoordinate, "inverted range %s", cellref.FormatRange(r1, c1, r2, c2))
	}
	for r := r1; r <= r2; r++ {
		for c := c1; c <= c2; c++ {
			if err := ws.SetStyle(r, c, h); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetFormula sets formula text on the cell, optionally with a cached
// result, without touching style or other metadata.
func (ws *Worksheet) SetFormula(row, col uint32, expr string, cached Value) error {
	if err := checkCoord(row, col); err != nil {
		return err
	}
	k := MakeKey(row, col)
	c := ws.cells[k]
	c.kind = KindFormula
	c.num = 0
	c.str = stringpool.Empty
	cold := c.ensureCold()
	cold.formula = expr
	cold.cached = cached
	cold.hasCached = !cached.IsEmpty()
	ws.put(k, c)
	return nil
}

// SetNumberFormat records an explicit per-cell number-format override.
func (ws *Worksheet) SetNumberFormat(row, col uint32, format string) error {
	if err := checkCoord(row, col); err != nil {
		return err
	}
	k := MakeKey(row, col)
	c := ws.cells[k]
	c.ensureCold().numFmt = format
	c.trimCold()
	ws.put(k, c)
	return nil
}

// SetTypeHint preserves a t= attribute that cannot be re-inferred from the
// value, so error cells and unknown types round-trip.
func (ws *Worksheet) SetTypeHint(row, col uint32, hint string) {
	k := MakeKey(row, col)
	c := ws.cells[k]
	c.ensureCold().typeHint = hint
	c.trimCold()
	ws.put(k, c)
}

// Delete removes the record at (row, col).  Deleting an absent cell is a
// no-op.
func (ws *Worksheet) Delete(row, col uint32) error {
	if err := checkCoord(row, col); err != nil {
		return err
	}
	delete(ws.cells, MakeKey(row, col))
	return nil
}

// At returns the view of the cell stored under k, used by the serializer
// together with SortedKeys.  An absent key yields the default view.
func (ws *Worksheet) At(k Key) CellView {
	return ws.view(k.Row(), k.Col(), ws.cells[k])
}

// put stores the record, dropping it when it has decayed to the default.
func (ws *Worksheet) put(k Key, c cell) {
	if c.isDefault() {
		delete(ws.cells, k)
		return
	}
	ws.cells[k] = c
}

// CellCount returns the number of stored cell records.
func (ws *Worksheet) CellCount() int { return len(ws.cells) }

// RowCount returns the highest occupied row index, 0 for an empty sheet.
func (ws *Worksheet) RowCount() uint32 {
	var max uint32
	for k := range ws.cells {
		if r := k.Row(); r > max {
			max = r
		}
	}
	return max
}

// ColCount returns the highest occupied column index, 0 for an empty sheet.
func (ws *Worksheet) ColCount() uint32 {
	var max uint32
	for k := range ws.cells {
		if c := k.Col(); c > max {
			max = c
		}
	}
	return max
}

// UsedRange returns the bounding rectangle of occupied cells.  ok is false
// for an empty sheet.
func (ws *Worksheet) UsedRange() (r1, c1, r2, c2 uint32, ok bool) {
	for k := range ws.cells {
		r, c := k.Row(), k.Col()
		if !ok {
			r1, c1, r2, c2, ok = r, c, r, c, true
			continue
		}
		if r < r1 {
			r1 = r
		}
		if r > r2 {
			r2 = r
		}
		if c < c1 {
			c1 = c
		}
		if c > c2 {
			c2 = c
		}
	}
	return r1, c1, r2, c2, ok
}

// SortedKeys returns every stored key in row-major order.  Map iteration
// order is unspecified, so serialization always goes through this.
func (ws *Worksheet) SortedKeys() []Key {
	keys := make([]Key, 0, len(ws.cells))
	for k := range ws.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Cells iterates over all cells in row-major order.
// It uses Go range-over-func semantics:
//
//	for cv := range ws.Cells() {
//	    ...
//	}
func (ws *Worksheet) Cells() func(yield func(CellView) bool) {
	return func(yield func(CellView) bool) {
		for _, k := range ws.SortedKeys() {
			if !yield(ws.view(k.Row(), k.Col(), ws.cells[k])) {
				return
			}
		}
	}
}

// Row iterates over the stored cells of one row in column order.
func (ws *Worksheet) Row(row uint32) func(yield func(CellView) bool) {
	return func(yield func(CellView) bool) {
		var keys []Key
		for k := range ws.cells {
			if k.Row() == row {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			if !yield(ws.view(k.Row(), k.Col(), ws.cells[k])) {
				return
			}
		}
	}
}

// Range iterates over the stored cells inside the inclusive rectangle in
// row-major order.
func (ws *Worksheet) Range(r1, c1, r2, c2 uint32) func(yield func(CellView) bool) {
	return func(yield func(CellView) bool) {
		var keys []Key
		for k := range ws.cells {
			r, c := k.Row(), k.Col()
			if r >= r1 && r <= r2 && c >= c1 && c <= c2 {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			if !yield(ws.view(k.Row(), k.Col(), ws.cells[k])) {
				return
			}
		}
	}
}

// AppendRow writes vals into the row after the highest occupied row, column 1 onward,
// and returns the row index used.  A convenience for bulk writers.
func (ws *Worksheet) AppendRow(vals []Value) (uint32, error) {
	row := ws.RowCount() + 1
	for i, v := range vals {
		if err := ws.SetValue(row, uint32(i+1), v); err != nil {
			return 0, err
		}
	}
	return row, nil
}

// Reserve pre-sizes the store for an expected cell count, used by the
// loader when the worksheet part declares a credible dimension.
func (ws *Worksheet) Reserve(cells int) {
	if len(ws.cells) > 0 || cells <= 0 {
		return
	}
	m := make(map[Key]cell, cells)
	ws.cells = m
}
