// Package worksheet holds the in-memory model of a single sheet: a sparse
// cell store addressed by packed (row, col) keys plus the sheet-level
// tables (merged ranges, dimensions, protection, hyperlinks, comments, and
// the collaborator tables for autofilter, conditional formats, data
// validations, and structured tables).
//
// Cell coordinates are 1-based throughout, matching the A1 reference
// space.  The store is sparse: only cells carrying a value, a non-default
// style, or metadata occupy memory.
package worksheet

import (
	"sort"

	"github.com/TsubasaBE/go-xlsx/cellref"
	"github.com/TsubasaBE/go-xlsx/stringpool"
	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

// ColDim is a column-range dimension entry (<col min=... max=.../>).
type ColDim struct {
	Min    uint32
	Max    uint32
	Width  float64
	Hidden bool
	// Style is the xf index applied to blank cells of the range; HasStyle
	// distinguishes "style 0" from "no style attribute".
	Style    uint32
	HasStyle bool
	HasWidth bool
}

// RowDim is a row dimension entry beyond the cells it contains.
type RowDim struct {
	Height       float64
	HasHeight    bool
	Hidden       bool
	OutlineLevel uint8
}

// MergedRange is an inclusive rectangular merge.
type MergedRange struct {
	R1, C1, R2, C2 uint32
}

// Ref renders the merge as an "A1:B2" reference.
func (m MergedRange) Ref() string {
	return cellref.FormatRange(m.R1, m.C1, m.R2, m.C2)
}

// overlaps reports whether two merges share any cell.
func (m MergedRange) overlaps(o MergedRange) bool {
	return m.R1 <= o.R2 && o.R1 <= m.R2 && m.C1 <= o.C2 && o.C1 <= m.C2
}

// Hyperlink is one hyperlink table entry.  Target is the external URL
// (written through the sheet's .rels part); Location is an in-workbook
// anchor ("Sheet2!A1").  One of the two is set.
type Hyperlink struct {
	Target   string
	Location string
	Tooltip  string
}

// Protection is the sheetProtection flag set.  The Sheet flag is the
// master switch; the remaining flags name the operations that stay allowed
// while the sheet is protected.
type Protection struct {
	Sheet               bool
	Password            string // legacy 16-bit hash, preserved as hex text
	SelectLockedCells   bool
	SelectUnlockedCells bool
	FormatCells         bool
	FormatColumns       bool
	FormatRows          bool
	InsertColumns       bool
	InsertRows          bool
	InsertHyperlinks    bool
	DeleteColumns       bool
	DeleteRows          bool
	Sort                bool
	AutoFilter          bool
	PivotTables         bool
	Objects             bool
	Scenarios           bool
}

// View is the sheet-view block: frozen panes and the handful of toggles
// the library round-trips.
type View struct {
	FrozenRows uint32
	FrozenCols uint32
	// HideGridLines is the file's showGridLines attribute inverted, so the
	// zero View means the Excel default (grid lines shown).
	HideGridLines bool
	TabSelected   bool
}

// CFRule is one conditional-formatting rule.
type CFRule struct {
	Type     string // "cellIs", "expression", "colorScale", ...
	Operator string
	Priority int
	Formulas []string
	Text     string
	DxfID    int
	HasDxf   bool
}

// ConditionalFormat groups the rules applied to one range.
type ConditionalFormat struct {
	Ref   string
	Rules []CFRule
}

// DataValidation constrains the values accepted by a range.
type DataValidation struct {
	Ref          string
	Type         string // "list", "whole", "decimal", "date", ...
	Operator     string
	Formula1     string
	Formula2     string
	AllowBlank   bool
	ShowError    bool
	ErrorTitle   string
	ErrorMessage string
	ShowInput    bool
	PromptTitle  string
	PromptMsg    string
}

// Table is a structured table (ListObject) anchored to the sheet.
type Table struct {
	ID          int
	Name        string
	DisplayName string
	Ref         string
	Columns     []string
	HeaderRow   bool
	TotalsRow   bool
	StyleName   string
}

// PageMargins is the pageMargins block, in inches.
type PageMargins struct {
	Left   float64
	Right  float64
	Top    float64
	Bottom float64
	Header float64
	Footer float64
}

// DefaultPageMargins are the values Excel writes for a fresh sheet.
var DefaultPageMargins = PageMargins{Left: 0.7, Right: 0.7, Top: 0.75, Bottom: 0.75, Header: 0.3, Footer: 0.3}

// PageSetup is the pageSetup block.
type PageSetup struct {
	Orientation string // "portrait" or "landscape"
	PaperSize   int
	Scale       int
	FitToWidth  int
	FitToHeight int
}

// HeaderFooter carries the odd header and footer strings.
type HeaderFooter struct {
	OddHeader string
	OddFooter string
}

// FormatPr is the sheetFormatPr block.
type FormatPr struct {
	DefaultRowHeight float64
	DefaultColWidth  float64
	HasRowHeight     bool
	HasColWidth      bool
}

// Worksheet is one sheet of a workbook.  It is created through the
// workbook's sheet-management API, never directly; the zero value is not
// usable.
type Worksheet struct {
	name string
	// sheetID is the internal ID from the workbook part, distinct from both
	// the sheet's position and its relationship ID.
	sheetID uint32

	pool  *stringpool.Pool
	cells map[Key]cell

	merges  []MergedRange
	colDims []ColDim
	rowDims map[uint32]RowDim

	hyperlinks map[Key]Hyperlink
	comments   map[Key]string

	// Protection, view, and page blocks; nil pointers mean the part is
	// absent and nothing is written on save.
	Protection   *Protection
	SheetView    *View
	TabColor     string
	FormatPr     *FormatPr
	AutoFilter   string // range reference, empty when absent
	CondFormats  []ConditionalFormat
	Validations  []DataValidation
	Tables       []Table
	Margins      *PageMargins
	Setup        *PageSetup
	HeaderFooter *HeaderFooter
}

// New returns a worksheet bound to the workbook's string pool.  It is
// exported for the workbook package; library users go through
// Workbook.AddSheet.
func New(name string, sheetID uint32, pool *stringpool.Pool) *Worksheet {
	return &Worksheet{
		name:       name,
		sheetID:    sheetID,
		pool:       pool,
		cells:      make(map[Key]cell),
		rowDims:    make(map[uint32]RowDim),
		hyperlinks: make(map[Key]Hyperlink),
		comments:   make(map[Key]string),
	}
}

// Name returns the sheet's display name.
func (ws *Worksheet) Name() string { return ws.name }

// SetName is used by the workbook's rename operation, which owns the
// uniqueness check.
func (ws *Worksheet) SetName(name string) { ws.name = name }

// SheetID returns the internal sheet ID used in the workbook part.
func (ws *Worksheet) SheetID() uint32 { return ws.sheetID }

// ── merged ranges ─────────────────────────────────────────────────────────────

// Merge adds a merged range.  Ranges must be pairwise disjoint; an overlap
// with an existing merge fails with InvalidFormat.
func (ws *Worksheet) Merge(ref string) error {
	r1, c1, r2, c2, err := cellref.ParseRange(ref)
	if err != nil {
		return err
	}
	m := MergedRange{R1: r1, C1: c1, R2: r2, C2: c2}
	for _, existing := range ws.merges {
		if m.overlaps(existing) {
			return xlsxerr.New(xlsxerr.InvalidFormat, "merge %s overlaps existing merge %s", ref, existing.Ref())
		}
	}
	ws.merges = append(ws.merges, m)
	return nil
}

// Unmerge removes the merge whose reference equals ref.  Removing an
// unknown merge is a no-op.
func (ws *Worksheet) Unmerge(ref string) {
	for i, m := range ws.merges {
		if m.Ref() == ref {
			ws.merges = append(ws.merges[:i], ws.merges[i+1:]...)
			return
		}
	}
}

// Merges returns the merged ranges in insertion order.
func (ws *Worksheet) Merges() []MergedRange { return ws.merges }

// ── dimensions ────────────────────────────────────────────────────────────────

// SetColWidth sets the width of the inclusive column range [min, max].
func (ws *Worksheet) SetColWidth(min, max uint32, width float64) error {
	if min == 0 || max < min || max > cellref.MaxCol {
		return xlsxerr.New(xlsxerr.InvalidCoordinate, "column range %d..%d", min, max)
	}
	ws.colDims = append(ws.colDims, ColDim{Min: min, Max: max, Width: width, HasWidth: true})
	return nil
}

// SetColDim records a full column-dimension entry.
func (ws *Worksheet) SetColDim(d ColDim) error {
	if d.Min == 0 || d.Max < d.Min || d.Max > cellref.MaxCol {
		return xlsxerr.New(xlsxerr.InvalidCoordinate, "column range %d..%d", d.Min, d.Max)
	}
	ws.colDims = append(ws.colDims, d)
	return nil
}

// ColDims returns the column dimension entries in declaration order.
func (ws *Worksheet) ColDims() []ColDim { return ws.colDims }

// SetRowHeight sets an explicit height for row.
func (ws *Worksheet) SetRowHeight(row uint32, height float64) error {
	if row == 0 || row > cellref.MaxRow {
		return xlsxerr.New(xlsxerr.InvalidCoordinate, "row %d", row)
	}
	d := ws.rowDims[row]
	d.Height = height
	d.HasHeight = true
	ws.rowDims[row] = d
	return nil
}

// SetRowDim records a full row-dimension entry.
func (ws *Worksheet) SetRowDim(row uint32, d RowDim) error {
	if row == 0 || row > cellref.MaxRow {
		return xlsxerr.New(xlsxerr.InvalidCoordinate, "row %d", row)
	}
	ws.rowDims[row] = d
	return nil
}

// RowDim returns the dimension entry for row; ok is false when the row has
// no entry.
func (ws *Worksheet) RowDim(row uint32) (RowDim, bool) {
	d, ok := ws.rowDims[row]
	return d, ok
}

// RowDimRows returns the rows carrying an explicit dimension entry, in
// ascending order.
func (ws *Worksheet) RowDimRows() []uint32 {
	rows := make([]uint32, 0, len(ws.rowDims))
	for r := range ws.rowDims {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })
	return rows
}

// ── hyperlinks and comments ───────────────────────────────────────────────────

// SetHyperlink attaches a hyperlink to the cell.  An empty Hyperlink
// removes the entry.
func (ws *Worksheet) SetHyperlink(row, col uint32, h Hyperlink) error {
	if err := checkCoord(row, col); err != nil {
		return err
	}
	k := MakeKey(row, col)
	if h == (Hyperlink{}) {
		delete(ws.hyperlinks, k)
		return nil
	}
	ws.hyperlinks[k] = h
	return nil
}

// Hyperlink returns the hyperlink attached to the cell, if any.
func (ws *Worksheet) Hyperlink(row, col uint32) (Hyperlink, bool) {
	h, ok := ws.hyperlinks[MakeKey(row, col)]
	return h, ok
}

// HyperlinkCount returns the number of hyperlink entries.
func (ws *Worksheet) HyperlinkCount() int { return len(ws.hyperlinks) }

// HyperlinkKeys returns the hyperlink coordinates in row-major order.
func (ws *Worksheet) HyperlinkKeys() []Key { return sortedKeys(ws.hyperlinks) }

// SetComment attaches plain-text comment content to the cell.  An empty
// string removes the entry.
func (ws *Worksheet) SetComment(row, col uint32, text string) error {
	if err := checkCoord(row, col); err != nil {
		return err
	}
	k := MakeKey(row, col)
	if text == "" {
		delete(ws.comments, k)
		return nil
	}
	ws.comments[k] = text
	return nil
}

// Comment returns the comment attached to the cell, if any.
func (ws *Worksheet) Comment(row, col uint32) (string, bool) {
	s, ok := ws.comments[MakeKey(row, col)]
	return s, ok
}

// CommentCount returns the number of comment entries.
func (ws *Worksheet) CommentCount() int { return len(ws.comments) }

// CommentKeys returns the comment coordinates in row-major order.
func (ws *Worksheet) CommentKeys() []Key { return sortedKeys(ws.comments) }

func sortedKeys[V any](m map[Key]V) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
