// Package styles holds the workbook style catalog: the fonts, fills,
// borders, custom number formats, and cell-format (xf) records of
// xl/styles.xml.
//
// The catalog follows the file's layout: an xf entry does not own its font
// or fill, it indexes into the shared tables, so a workbook with a million
// styled cells and three fonts allocates three font bodies.  Entries are
// deduplicated by content on interning, and index 0 of every table is the
// OOXML default entry, which always exists.
package styles

import (
	"sync"

	"github.com/TsubasaBE/go-xlsx/numfmt"
)

// Handle is an index into the catalog's cell-format (xf) table.  Handle 0
// is the default style.
type Handle uint32

// Default is the handle of the default cell format.
const Default Handle = 0

// Font describes a font record.  Color is an "FFRRGGBB" ARGB string, a
// "theme:N" reference, or "auto"; the representation read from a file is
// preserved, never resolved, because downstream consumers depend on theme
// references surviving a round-trip.
type Font struct {
	Name      string
	Size      float64
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
	Color     string
	VertAlign string // "superscript" or "subscript"
}

// Fill describes a pattern fill.
type Fill struct {
	Pattern string // "none", "solid", "gray125", ...
	FgColor string
	BgColor string
}

// BorderEdge describes one edge of a border record.  A zero BorderEdge
// means the edge is absent.
type BorderEdge struct {
	Style string // "thin", "medium", "thick", "dashed", ...
	Color string
}

// Border describes a border record.
type Border struct {
	Left     BorderEdge
	Right    BorderEdge
	Top      BorderEdge
	Bottom   BorderEdge
	Diagonal BorderEdge
}

// Alignment describes the alignment block of an xf.
type Alignment struct {
	Horizontal   string
	Vertical     string
	WrapText     bool
	TextRotation int
	Indent       int
	ShrinkToFit  bool
}

// Protection describes the protection block of an xf.  Excel's default is
// locked and not hidden.
type Protection struct {
	Locked bool
	Hidden bool
}

// XF is one cell-format record: indices into the font/fill/border tables, a
// numFmtId, and the optional inline alignment and protection blocks.  The
// Has* flags distinguish an absent block from a zero-valued one, and the
// Apply* flags mirror the applyFont="1" family of attributes so that
// unrecognized combinations written by other producers survive a re-save.
type XF struct {
	FontID   uint32
	FillID   uint32
	BorderID uint32
	NumFmtID uint32

	Alignment     Alignment
	HasAlignment  bool
	Protection    Protection
	HasProtection bool

	ApplyFont      bool
	ApplyFill      bool
	ApplyBorder    bool
	ApplyNumberFmt bool
	ApplyAlignment bool
	ApplyProtect   bool
}

// NumFmt is one custom number format (numFmtId >= 164).
type NumFmt struct {
	ID     int
	Format string
}

// Catalog is the style registry of one workbook.  Interning is safe for
// concurrent use; index-based reads of entries that already exist never
// observe a partially written record because the tables are append-only.
type Catalog struct {
	mu      sync.Mutex
	fonts   []Font
	fills   []Fill
	borders []Border
	xfs     []XF
	numFmts []NumFmt

	fontIdx   map[Font]uint32
	fillIdx   map[Fill]uint32
	borderIdx map[Border]uint32
	xfIdx     map[XF]Handle
	numFmtIdx map[string]int
}

// Empty returns a catalog with no entries at all.  The loader uses it to
// rebuild tables positionally from a styles part; every other caller wants
// [NewCatalog].
func Empty() *Catalog {
	return &Catalog{
		fontIdx:   make(map[Font]uint32),
		fillIdx:   make(map[Fill]uint32),
		borderIdx: make(map[Border]uint32),
		xfIdx:     make(map[XF]Handle),
		numFmtIdx: make(map[string]int),
	}
}

// EnsureDefaults appends the required default entries to any table the
// styles part left empty, so index 0 always exists.
func (c *Catalog) EnsureDefaults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.fonts) == 0 {
		c.appendFont(Font{Name: "Calibri", Size: 11})
	}
	if len(c.fills) == 0 {
		c.appendFill(Fill{Pattern: "none"})
		c.appendFill(Fill{Pattern: "gray125"})
	}
	if len(c.borders) == 0 {
		c.appendBorder(Border{})
	}
	if len(c.xfs) == 0 {
		c.appendXF(XF{})
	}
}

// AppendRawFont appends a font positionally, preserving file order.
func (c *Catalog) AppendRawFont(f Font) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendFont(f)
}

// AppendRawFill appends a fill positionally, preserving file order.
func (c *Catalog) AppendRawFill(f Fill) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendFill(f)
}

// AppendRawBorder appends a border positionally, preserving file order.
func (c *Catalog) AppendRawBorder(b Border) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendBorder(b)
}

// NewCatalog returns a catalog seeded with the entries Excel requires:
// the Calibri 11 default font, the "none" and "gray125" fills, the empty
// border, and the default xf at handle 0.
func NewCatalog() *Catalog {
	c := &Catalog{
		fontIdx:   make(map[Font]uint32),
		fillIdx:   make(map[Fill]uint32),
		borderIdx: make(map[Border]uint32),
		xfIdx:     make(map[XF]Handle),
		numFmtIdx: make(map[string]int),
	}
	c.appendFont(Font{Name: "Calibri", Size: 11})
	c.appendFill(Fill{Pattern: "none"})
	c.appendFill(Fill{Pattern: "gray125"})
	c.appendBorder(Border{})
	c.appendXF(XF{})
	return c
}

func (c *Catalog) appendFont(f Font) uint32 {
	id := uint32(len(c.fonts))
	c.fonts = append(c.fonts, f)
	if _, ok := c.fontIdx[f]; !ok {
		c.fontIdx[f] = id
	}
	return id
}

func (c *Catalog) appendFill(f Fill) uint32 {
	id := uint32(len(c.fills))
	c.fills = append(c.fills, f)
	if _, ok := c.fillIdx[f]; !ok {
		c.fillIdx[f] = id
	}
	return id
}

func (c *Catalog) appendBorder(b Border) uint32 {
	id := uint32(len(c.borders))
	c.borders = append(c.borders, b)
	if _, ok := c.borderIdx[b]; !ok {
		c.borderIdx[b] = id
	}
	return id
}

func (c *Catalog) appendXF(xf XF) Handle {
	h := Handle(len(c.xfs))
	c.xfs = append(c.xfs, xf)
	if _, ok := c.xfIdx[xf]; !ok {
		c.xfIdx[xf] = h
	}
	return h
}

// InternFont returns the index of f, adding it if absent.
func (c *Catalog) InternFont(f Font) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.fontIdx[f]; ok {
		return id
	}
	return c.appendFont(f)
}

// InternFill returns the index of f, adding it if absent.
func (c *Catalog) InternFill(f Fill) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.fillIdx[f]; ok {
		return id
	}
	return c.appendFill(f)
}

// InternBorder returns the index of b, adding it if absent.
func (c *Catalog) InternBorder(b Border) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.borderIdx[b]; ok {
		return id
	}
	return c.appendBorder(b)
}

// InternNumFmt returns the numFmtId for format.  Built-in strings resolve
// to their reserved IDs 0–163; anything else is registered as a custom
// format with an ID at or above [numfmt.FirstCustomID].
func (c *Catalog) InternNumFmt(format string) int {
	if id := numfmt.BuiltInID(format); id >= 0 {
		return id
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.numFmtIdx[format]; ok {
		return id
	}
	id := numfmt.FirstCustomID
	for _, nf := range c.numFmts {
		if nf.ID >= id {
			id = nf.ID + 1
		}
	}
	c.numFmts = append(c.numFmts, NumFmt{ID: id, Format: format})
	c.numFmtIdx[format] = id
	return id
}

// AddNumFmt registers a custom format under an explicit ID, as read from a
// styles part.  Existing registrations for the same ID are replaced.
func (c *Catalog) AddNumFmt(id int, format string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, nf := range c.numFmts {
		if nf.ID == id {
			delete(c.numFmtIdx, nf.Format)
			c.numFmts[i].Format = format
			c.numFmtIdx[format] = id
			return
		}
	}
	c.numFmts = append(c.numFmts, NumFmt{ID: id, Format: format})
	c.numFmtIdx[format] = id
}

// InternXF returns the handle for xf, adding it if absent.  The referenced
// font/fill/border indices must already be in range; out-of-range indices
// panic because they would corrupt the catalog invariant.
func (c *Catalog) InternXF(xf XF) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(xf.FontID) >= len(c.fonts) || int(xf.FillID) >= len(c.fills) || int(xf.BorderID) >= len(c.borders) {
		panic("styles: xf references out-of-range table index")
	}
	if h, ok := c.xfIdx[xf]; ok {
		return h
	}
	return c.appendXF(xf)
}

// AppendRawXF appends an xf without dedup, preserving the file's xf
// positions on load (cells address xfs by position, so collapsing
// duplicates here would break every style index that follows).
func (c *Catalog) AppendRawXF(xf XF) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendXF(xf)
}

// Font returns the font at index id, or the default font when id is out of
// range (a malformed file's dangling index degrades to the default look).
func (c *Catalog) Font(id uint32) Font {
	if int(id) >= len(c.fonts) {
		return c.fonts[0]
	}
	return c.fonts[id]
}

// Fill returns the fill at index id, or the default when out of range.
func (c *Catalog) Fill(id uint32) Fill {
	if int(id) >= len(c.fills) {
		return c.fills[0]
	}
	return c.fills[id]
}

// Border returns the border at index id, or the default when out of range.
func (c *Catalog) Border(id uint32) Border {
	if int(id) >= len(c.borders) {
		return c.borders[0]
	}
	return c.borders[id]
}

// XF returns the cell format at h, or the default xf when h is out of
// range.
func (c *Catalog) XF(h Handle) XF {
	if int(h) >= len(c.xfs) {
		return c.xfs[0]
	}
	return c.xfs[h]
}

// Valid reports whether h refers to a live xf entry.
func (c *Catalog) Valid(h Handle) bool { return int(h) < len(c.xfs) }

// NumFmtString returns the effective format string for a numFmtId: a custom
// registration when present, else the built-in table, else "General".
func (c *Catalog) NumFmtString(id int) string {
	c.mu.Lock()
	for _, nf := range c.numFmts {
		if nf.ID == id {
			c.mu.Unlock()
			return nf.Format
		}
	}
	c.mu.Unlock()
	return numfmt.Resolve(id, "")
}

// IsDate reports whether the cell format at h carries a date or time number
// format.
func (c *Catalog) IsDate(h Handle) bool {
	xf := c.XF(h)
	id := int(xf.NumFmtID)
	if id < numfmt.FirstCustomID {
		return numfmt.IsDateID(id)
	}
	return numfmt.IsDate(id, c.NumFmtString(id))
}

// Table lengths, used by the serializer's count attributes.

func (c *Catalog) FontCount() int   { return len(c.fonts) }
func (c *Catalog) FillCount() int   { return len(c.fills) }
func (c *Catalog) BorderCount() int { return len(c.borders) }
func (c *Catalog) XFCount() int     { return len(c.xfs) }

// NumFmts returns the custom number formats in registration order.
func (c *Catalog) NumFmts() []NumFmt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]NumFmt, len(c.numFmts))
	copy(out, c.numFmts)
	return out
}
