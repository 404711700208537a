// Package workbook is the ownership root of the model and the home of the
// load/save pipelines.
//
// A Workbook owns its worksheets, string pool, style catalog, and defined
// names.  Loading decodes the archive parts in dependency order — workbook,
// shared strings, styles sequentially, then every worksheet in parallel —
// and saving re-collects strings and styles into fresh tables before
// emitting the parts in a fixed order.
//
// A frozen workbook is safe for concurrent readers.  Mutation requires
// external exclusion; the only internal synchronization is what the pool
// and catalog need while worksheet parts decode concurrently.
package workbook

import (
	"golang.org/x/text/cases"

	"github.com/TsubasaBE/go-xlsx/formula"
	"github.com/TsubasaBE/go-xlsx/internal/container"
	"github.com/TsubasaBE/go-xlsx/stringpool"
	"github.com/TsubasaBE/go-xlsx/styles"
	"github.com/TsubasaBE/go-xlsx/worksheet"
	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

// MaxSheetNameLength is the longest sheet name the format allows.
const MaxSheetNameLength = 31

// CompressionLevel selects the archive deflate level used on save.
type CompressionLevel = container.Level

// Compression levels for Workbook.Compression.
const (
	CompressionNone    = container.None
	CompressionFast    = container.Fast
	CompressionDefault = container.Default
	CompressionBest    = container.Best
)

// Sheet visibility states from the workbook part.
const (
	SheetVisible    = "visible"
	SheetHidden     = "hidden"
	SheetVeryHidden = "veryHidden"
)

// DefinedName is a named range or expression.  RefersTo is kept as the
// opaque reference text; [DefinedName.Resolve] attempts to interpret it.
type DefinedName struct {
	Name string
	// RefersTo is the reference text, e.g. "Beta!$B$2" or an arbitrary
	// expression that could not be parsed.
	RefersTo string
	// SheetIndex scopes the name to one sheet (0-based position), or -1
	// for workbook scope.
	SheetIndex int
}

// Resolve splits RefersTo into its sheet qualifier and range text.  ok is
// false when the text is not a single range reference; callers then treat
// the name as opaque.
func (dn DefinedName) Resolve() (sheet, rangeRef string, ok bool) {
	return formula.SplitRef(dn.RefersTo)
}

// Workbook is an in-memory workbook.
type Workbook struct {
	sheets     []*worksheet.Worksheet
	visibility []string // parallel to sheets; SheetVisible etc.

	pool    *stringpool.Pool
	catalog *styles.Catalog

	definedNames []DefinedName

	// Compression selects the archive deflate level used on save.
	Compression CompressionLevel
	// Date1904 is true when the workbook uses the 1904 date system.
	Date1904 bool

	// ParallelRowThreshold is the row count above which sheetData emission
	// is chunked across goroutines.
	ParallelRowThreshold int
	// ParallelChunkRows is the number of rows per emission chunk.
	ParallelChunkRows int

	// richText maps flattened shared-string content to the original <si>
	// inner markup, so rich-text runs survive a round trip.
	richText map[string]string

	nextSheetID uint32
}

// New returns an empty workbook with the default style catalog and
// compression policy.
func New() *Workbook {
	return &Workbook{
		pool:                 stringpool.New(),
		catalog:              styles.NewCatalog(),
		Compression:          container.Default,
		ParallelRowThreshold: 1000,
		ParallelChunkRows:    5000,
		richText:             make(map[string]string),
		nextSheetID:          0,
	}
}

// Pool returns the workbook's string pool.
func (wb *Workbook) Pool() *stringpool.Pool { return wb.pool }

// Styles returns the workbook's style catalog.
func (wb *Workbook) Styles() *styles.Catalog { return wb.catalog }

// ── sheet management ──────────────────────────────────────────────────────────

// foldName is the case-fold form under which sheet names must be unique.
var foldName = cases.Fold()

func (wb *Workbook) findSheet(name string) int {
	folded := foldName.String(name)
	for i, ws := range wb.sheets {
		if foldName.String(ws.Name()) == folded {
			return i
		}
	}
	return -1
}

func (wb *Workbook) checkNewName(name string) error {
	if name == "" {
		return xlsxerr.New(xlsxerr.InvalidFormat, "empty sheet name")
	}
	if len([]rune(name)) > MaxSheetNameLength {
		return xlsxerr.New(xlsxerr.InvalidFormat, "sheet name %q exceeds %d characters", name, MaxSheetNameLength)
	}
	if wb.findSheet(name) >= 0 {
		return xlsxerr.New(xlsxerr.WorksheetAlreadyExists, "sheet %q already exists", name)
	}
	return nil
}

// AddSheet appends a new empty worksheet with the given display name.
// Names are unique under Unicode case folding and at most 31 characters.
func (wb *Workbook) AddSheet(name string) (*worksheet.Worksheet, error) {
	if err := wb.checkNewName(name); err != nil {
		return nil, err
	}
	wb.nextSheetID++
	ws := worksheet.New(name, wb.nextSheetID, wb.pool)
	wb.sheets = append(wb.sheets, ws)
	wb.visibility = append(wb.visibility, SheetVisible)
	return ws, nil
}

// attachSheet is the loader's append path: the sheet ID comes from the
// file and duplicates have already been rejected.
func (wb *Workbook) attachSheet(ws *worksheet.Worksheet, visibility string) {
	wb.sheets = append(wb.sheets, ws)
	if visibility == "" {
		visibility = SheetVisible
	}
	wb.visibility = append(wb.visibility, visibility)
	if ws.SheetID() > wb.nextSheetID {
		wb.nextSheetID = ws.SheetID()
	}
}

// RemoveSheet removes the sheet with the given name.
func (wb *Workbook) RemoveSheet(name string) error {
	i := wb.findSheet(name)
	if i < 0 {
		return xlsxerr.New(xlsxerr.WorksheetNotFound, "sheet %q not found", name)
	}
	wb.sheets = append(wb.sheets[:i], wb.sheets[i+1:]...)
	wb.visibility = append(wb.visibility[:i], wb.visibility[i+1:]...)
	return nil
}

// RenameSheet changes a sheet's display name, enforcing uniqueness.
func (wb *Workbook) RenameSheet(oldName, newName string) error {
	i := wb.findSheet(oldName)
	if i < 0 {
		return xlsxerr.New(xlsxerr.WorksheetNotFound, "sheet %q not found", oldName)
	}
	// Renaming to a case variant of itself is allowed.
	if j := wb.findSheet(newName); j >= 0 && j != i {
		return xlsxerr.New(xlsxerr.WorksheetAlreadyExists, "sheet %q already exists", newName)
	}
	if newName == "" || len([]rune(newName)) > MaxSheetNameLength {
		return xlsxerr.New(xlsxerr.InvalidFormat, "invalid sheet name %q", newName)
	}
	wb.sheets[i].SetName(newName)
	return nil
}

// Sheet returns the worksheet at the given 0-based position.
func (wb *Workbook) Sheet(index int) (*worksheet.Worksheet, error) {
	if index < 0 || index >= len(wb.sheets) {
		return nil, xlsxerr.New(xlsxerr.WorksheetNotFound, "sheet index %d out of range [0, %d)", index, len(wb.sheets))
	}
	return wb.sheets[index], nil
}

// SheetByName returns the worksheet with the given name under case-fold
// matching.
func (wb *Workbook) SheetByName(name string) (*worksheet.Worksheet, error) {
	i := wb.findSheet(name)
	if i < 0 {
		return nil, xlsxerr.New(xlsxerr.WorksheetNotFound, "sheet %q not found", name)
	}
	return wb.sheets[i], nil
}

// Active returns the first worksheet.
func (wb *Workbook) Active() (*worksheet.Worksheet, error) {
	if len(wb.sheets) == 0 {
		return nil, xlsxerr.New(xlsxerr.NoWorksheets, "workbook has no worksheets")
	}
	return wb.sheets[0], nil
}

// SheetCount returns the number of worksheets.
func (wb *Workbook) SheetCount() int { return len(wb.sheets) }

// SheetNames returns the display names in workbook order.
func (wb *Workbook) SheetNames() []string {
	names := make([]string, len(wb.sheets))
	for i, ws := range wb.sheets {
		names[i] = ws.Name()
	}
	return names
}

// SheetVisibility returns the visibility state of the sheet at index.
func (wb *Workbook) SheetVisibility(index int) (string, error) {
	if index < 0 || index >= len(wb.visibility) {
		return "", xlsxerr.New(xlsxerr.WorksheetNotFound, "sheet index %d out of range [0, %d)", index, len(wb.sheets))
	}
	return wb.visibility[index], nil
}

// SetSheetVisibility sets the visibility state of the sheet at index.
func (wb *Workbook) SetSheetVisibility(index int, state string) error {
	if index < 0 || index >= len(wb.visibility) {
		return xlsxerr.New(xlsxerr.WorksheetNotFound, "sheet index %d out of range [0, %d)", index, len(wb.sheets))
	}
	switch state {
	case SheetVisible, SheetHidden, SheetVeryHidden:
		wb.visibility[index] = state
		return nil
	}
	return xlsxerr.New(xlsxerr.InvalidFormat, "unknown sheet visibility %q", state)
}

// ── defined names ─────────────────────────────────────────────────────────────

// SetDefinedName registers a defined name.  sheetIndex scopes the name to
// one sheet, or -1 for workbook scope.  A duplicate (name, scope) pair
// fails with InvalidFormat.
func (wb *Workbook) SetDefinedName(name, refersTo string, sheetIndex int) error {
	if name == "" {
		return xlsxerr.New(xlsxerr.InvalidFormat, "empty defined name")
	}
	if sheetIndex < -1 || sheetIndex >= len(wb.sheets) {
		return xlsxerr.New(xlsxerr.WorksheetNotFound, "defined name scope index %d out of range", sheetIndex)
	}
	for _, dn := range wb.definedNames {
		if dn.Name == name && dn.SheetIndex == sheetIndex {
			return xlsxerr.New(xlsxerr.InvalidFormat, "defined name %q already exists in this scope", name)
		}
	}
	wb.definedNames = append(wb.definedNames, DefinedName{Name: name, RefersTo: refersTo, SheetIndex: sheetIndex})
	return nil
}

// DefinedName looks up a name, preferring the scope of sheetIndex and
// falling back to workbook scope.
func (wb *Workbook) DefinedName(name string, sheetIndex int) (DefinedName, bool) {
	var global DefinedName
	var haveGlobal bool
	for _, dn := range wb.definedNames {
		if dn.Name != name {
			continue
		}
		if dn.SheetIndex == sheetIndex {
			return dn, true
		}
		if dn.SheetIndex == -1 {
			global, haveGlobal = dn, true
		}
	}
	return global, haveGlobal
}

// DefinedNames returns all defined names in registration order.
func (wb *Workbook) DefinedNames() []DefinedName {
	out := make([]DefinedName, len(wb.definedNames))
	copy(out, wb.definedNames)
	return out
}

// RemoveDefinedName removes the (name, scope) registration.
func (wb *Workbook) RemoveDefinedName(name string, sheetIndex int) error {
	for i, dn := range wb.definedNames {
		if dn.Name == name && dn.SheetIndex == sheetIndex {
			wb.definedNames = append(wb.definedNames[:i], wb.definedNames[i+1:]...)
			return nil
		}
	}
	return xlsxerr.New(xlsxerr.WorksheetNotFound, "defined name %q not found", name)
}

// ── misc ──────────────────────────────────────────────────────────────────────

// preservedMarkup returns the original rich-text <si> inner markup for a
// flattened string, if the loader recorded one.
func (wb *Workbook) preservedMarkup(content string) (string, bool) {
	m, ok := wb.richText[content]
	return m, ok
}
