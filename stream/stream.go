// Package stream is the constant-memory append path: it produces a valid
// .xlsx while the caller holds no workbook in memory.
//
// Usage discipline: create a [Writer], add a sheet, push rows in strictly
// increasing row order, optionally add further sheets, then Close.  Each
// row is serialized into the archive's compressed stream as it arrives, so
// peak memory is bounded by one row plus the shared-string table the
// format forces into a separate part.  Callers that need that bound too
// can emit every string inline with [InlineString].
//
//	w, _ := stream.NewFile("big.xlsx", stream.Fast)
//	sh, _ := w.AddSheet("Data")
//	for _, rec := range records {
//	    _ = sh.AppendRow([]stream.Cell{stream.String(rec.Name), stream.Number(rec.Total)})
//	}
//	_ = w.Close()
package stream

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/TsubasaBE/go-xlsx/cellref"
	"github.com/TsubasaBE/go-xlsx/internal/container"
	"github.com/TsubasaBE/go-xlsx/internal/rels"
	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

const (
	nsSpreadsheet  = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	nsRelationship = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsContentTypes = "http://schemas.openxmlformats.org/package/2006/content-types"

	xmlDecl = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
)

// CompressionLevel selects the archive deflate level.
type CompressionLevel = container.Level

// Compression levels accepted by NewWriter and NewFile.
const (
	None    = container.None
	Fast    = container.Fast
	Default = container.Default
	Best    = container.Best
)

// cellKind discriminates streamed cell payloads.
type cellKind uint8

const (
	kindEmpty cellKind = iota
	kindNumber
	kindBool
	kindString
	kindInline
	kindFormula
)

// Cell is one streamed cell value.  Build cells with the constructors.
type Cell struct {
	kind cellKind
	num  float64
	str  string
}

// Number returns a numeric cell.
func Number(f float64) Cell { return Cell{kind: kindNumber, num: f} }

// Bool returns a boolean cell.
func Bool(v bool) Cell {
	var n float64
	if v {
		n = 1
	}
	return Cell{kind: kindBool, num: n}
}

// String returns a text cell routed through the shared-string table.
func String(s string) Cell { return Cell{kind: kindString, str: s} }

// InlineString returns a text cell written inline, bypassing the
// shared-string table so repeated use adds no resident memory.
func InlineString(s string) Cell { return Cell{kind: kindInline, str: s} }

// Formula returns a formula cell.  The text excludes the leading "=".
func Formula(expr string) Cell { return Cell{kind: kindFormula, str: expr} }

// Blank returns an empty cell that only advances the column position.
func Blank() Cell { return Cell{} }

// Sheet is the append handle for one declared sheet.  It is valid until
// the next AddSheet or Close call on its writer.
type Sheet struct {
	w         *Writer
	index     int
	name      string
	nextRow   uint32
	finalized bool
}

// Writer streams a workbook to a sink.
type Writer struct {
	cw        *container.Writer
	closeFile func() error

	sheets  []string
	current *Sheet
	closed  bool

	// Incremental shared-string table; unavoidable because the format puts
	// shared strings in a separate part written at the end.
	sst    []string
	sstIdx map[string]int
	refs   int

	rowBuf bytes.Buffer
	entry  io.Writer
}

// NewWriter streams the archive to out at the given compression level.
func NewWriter(out io.Writer, level CompressionLevel) *Writer {
	return &Writer{
		cw:     container.NewWriter(out, level),
		sstIdx: make(map[string]int),
	}
}

// NewFile streams the archive to the named file.  The file is created
// immediately; rows stream straight to disk.
func NewFile(path string, level CompressionLevel) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, xlsxerr.Wrap(xlsxerr.Io, err, "create %q", path)
	}
	w := NewWriter(f, level)
	w.closeFile = f.Close
	return w, nil
}

// AddSheet finalizes the current sheet, if any, and starts a new one.
func (w *Writer) AddSheet(name string) (*Sheet, error) {
	if w.closed {
		return nil, xlsxerr.New(xlsxerr.InvalidFormat, "writer already closed")
	}
	if name == "" {
		return nil, xlsxerr.New(xlsxerr.InvalidFormat, "empty sheet name")
	}
	for _, existing := range w.sheets {
		if existing == name {
			return nil, xlsxerr.New(xlsxerr.WorksheetAlreadyExists, "sheet %q already declared", name)
		}
	}
	if err := w.finishCurrent(); err != nil {
		return nil, err
	}
	w.sheets = append(w.sheets, name)
	idx := len(w.sheets)

	entry, err := w.cw.Create("xl/worksheets/sheet" + strconv.Itoa(idx) + ".xml")
	if err != nil {
		return nil, err
	}
	w.entry = entry
	header := xmlDecl + `<worksheet xmlns="` + nsSpreadsheet + `">` + "\n<sheetData>\n"
	if _, err := io.WriteString(entry, header); err != nil {
		return nil, xlsxerr.Wrap(xlsxerr.Io, err, "write sheet header")
	}
	w.current = &Sheet{w: w, index: idx, name: name, nextRow: 0}
	return w.current, nil
}

// AppendRow serializes one row at the next row index, columns starting at
// 1.  Rows arrive in strictly increasing order by construction; appending
// to a finalized sheet fails with InvalidFormat.
func (s *Sheet) AppendRow(cells []Cell) error {
	return s.AppendRowAt(s.nextRow+1, cells)
}

// AppendRowAt serializes one row at an explicit 1-based row index, which
// must be strictly greater than every row already written to the sheet.
func (s *Sheet) AppendRowAt(row uint32, cells []Cell) error {
	w := s.w
	if s.finalized || w.current != s {
		return xlsxerr.New(xlsxerr.InvalidFormat, "sheet %q is finalized", s.name)
	}
	if row == 0 || row > cellref.MaxRow {
		return xlsxerr.New(xlsxerr.InvalidCoordinate, "row %d outside the sheet grid", row)
	}
	if row <= s.nextRow {
		return xlsxerr.New(xlsxerr.InvalidFormat, "row %d arrives after row %d; rows must be strictly increasing", row, s.nextRow)
	}
	if uint32(len(cells)) > cellref.MaxCol {
		return xlsxerr.New(xlsxerr.InvalidCoordinate, "row has %d cells, more than %d columns", len(cells), cellref.MaxCol)
	}
	s.nextRow = row

	buf := &w.rowBuf
	buf.Reset()
	buf.WriteString(`<row r="`)
	buf.WriteString(strconv.FormatUint(uint64(row), 10))
	buf.WriteString(`">`)
	var scratch []byte
	for i, c := range cells {
		if c.kind == kindEmpty {
			continue
		}
		scratch = cellref.AppendFormat(scratch[:0], row, uint32(i+1))
		buf.WriteString(`<c r="`)
		buf.Write(scratch)
		switch c.kind {
		case kindNumber:
			buf.WriteString(`"><v>`)
			buf.WriteString(strconv.FormatFloat(c.num, 'G', -1, 64))
			buf.WriteString(`</v></c>`)
		case kindBool:
			if c.num != 0 {
				buf.WriteString(`" t="b"><v>1</v></c>`)
			} else {
				buf.WriteString(`" t="b"><v>0</v></c>`)
			}
		case kindString:
			buf.WriteString(`" t="s"><v>`)
			buf.WriteString(strconv.Itoa(w.internSST(c.str)))
			buf.WriteString(`</v></c>`)
		case kindInline:
			buf.WriteString(`" t="inlineStr"><is>`)
			writeT(buf, c.str)
			buf.WriteString(`</is></c>`)
		case kindFormula:
			buf.WriteString(`"><f>`)
			escText(buf, c.str)
			buf.WriteString(`</f></c>`)
		}
	}
	buf.WriteString("</row>\n")
	if _, err := w.entry.Write(buf.Bytes()); err != nil {
		return xlsxerr.Wrap(xlsxerr.Io, err, "write row %d", row)
	}
	return nil
}

func (w *Writer) internSST(s string) int {
	w.refs++
	if idx, ok := w.sstIdx[s]; ok {
		return idx
	}
	idx := len(w.sst)
	w.sst = append(w.sst, s)
	w.sstIdx[s] = idx
	return idx
}

// finishCurrent closes the open sheet's XML.
func (w *Writer) finishCurrent() error {
	if w.current == nil {
		return nil
	}
	if _, err := io.WriteString(w.entry, "</sheetData>\n</worksheet>"); err != nil {
		return xlsxerr.Wrap(xlsxerr.Io, err, "finalize sheet %q", w.current.name)
	}
	w.current.finalized = true
	w.current = nil
	w.entry = nil
	return nil
}

// Close finalizes the open sheet, writes the bookkeeping parts, and
// finishes the archive.  A workbook with no sheets fails with
// NoWorksheets.
func (w *Writer) Close() error {
	if w.closed {
		return xlsxerr.New(xlsxerr.InvalidFormat, "writer already closed")
	}
	if len(w.sheets) == 0 {
		return xlsxerr.New(xlsxerr.NoWorksheets, "no sheets declared")
	}
	if err := w.finishCurrent(); err != nil {
		return err
	}
	w.closed = true

	if err := w.cw.Put("[Content_Types].xml", w.contentTypes()); err != nil {
		return err
	}
	if err := w.cw.Put("_rels/.rels", rels.Marshal([]rels.Rel{
		{ID: "rId1", Type: rels.TypeOfficeDocument, Target: "xl/workbook.xml"},
	})); err != nil {
		return err
	}
	if err := w.cw.Put("xl/workbook.xml", w.workbookXML()); err != nil {
		return err
	}
	if err := w.cw.Put("xl/_rels/workbook.xml.rels", w.workbookRels()); err != nil {
		return err
	}
	if len(w.sst) > 0 {
		if err := w.cw.Put("xl/sharedStrings.xml", w.sharedStringsXML()); err != nil {
			return err
		}
	}
	if err := w.cw.Put("xl/styles.xml", minimalStyles()); err != nil {
		return err
	}
	if err := w.cw.Close(); err != nil {
		return err
	}
	if w.closeFile != nil {
		return w.closeFile()
	}
	return nil
}

func (w *Writer) contentTypes() []byte {
	var b bytes.Buffer
	b.WriteString(xmlDecl)
	b.WriteString(`<Types xmlns="` + nsContentTypes + `">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>`)
	b.WriteString(`<Override PartName="/xl/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"/>`)
	if len(w.sst) > 0 {
		b.WriteString(`<Override PartName="/xl/sharedStrings.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"/>`)
	}
	for i := range w.sheets {
		b.WriteString(`<Override PartName="/xl/worksheets/sheet` + strconv.Itoa(i+1) + `.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>`)
	}
	b.WriteString(`</Types>`)
	return b.Bytes()
}

func (w *Writer) workbookXML() []byte {
	var b bytes.Buffer
	b.WriteString(xmlDecl)
	b.WriteString(`<workbook xmlns="` + nsSpreadsheet + `" xmlns:r="` + nsRelationship + `">`)
	b.WriteString(`<sheets>`)
	for i, name := range w.sheets {
		b.WriteString(`<sheet name="`)
		escAttr(&b, name)
		b.WriteString(`" sheetId="` + strconv.Itoa(i+1) + `" r:id="rId` + strconv.Itoa(i+1) + `"/>`)
	}
	b.WriteString(`</sheets>`)
	b.WriteString(`</workbook>`)
	return b.Bytes()
}

func (w *Writer) workbookRels() []byte {
	entries := make([]rels.Rel, 0, len(w.sheets)+2)
	for i := range w.sheets {
		entries = append(entries, rels.Rel{
			ID:     "rId" + strconv.Itoa(i+1),
			Type:   rels.TypeWorksheet,
			Target: "worksheets/sheet" + strconv.Itoa(i+1) + ".xml",
		})
	}
	entries = append(entries, rels.Rel{
		ID: "rId" + strconv.Itoa(len(w.sheets)+1), Type: rels.TypeStyles, Target: "styles.xml",
	})
	if len(w.sst) > 0 {
		entries = append(entries, rels.Rel{
			ID: "rId" + strconv.Itoa(len(w.sheets)+2), Type: rels.TypeSharedStrings, Target: "sharedStrings.xml",
		})
	}
	return rels.Marshal(entries)
}

func (w *Writer) sharedStringsXML() []byte {
	var b bytes.Buffer
	b.WriteString(xmlDecl)
	b.WriteString(`<sst xmlns="` + nsSpreadsheet + `" count="` + strconv.Itoa(w.refs) +
		`" uniqueCount="` + strconv.Itoa(len(w.sst)) + `">`)
	for _, s := range w.sst {
		b.WriteString(`<si>`)
		writeT(&b, s)
		b.WriteString(`</si>`)
	}
	b.WriteString(`</sst>`)
	return b.Bytes()
}

func minimalStyles() []byte {
	return []byte(xmlDecl +
		`<styleSheet xmlns="` + nsSpreadsheet + `">` +
		`<fonts count="1"><font><sz val="11"/><name val="Calibri"/></font></fonts>` +
		`<fills count="2"><fill><patternFill patternType="none"/></fill><fill><patternFill patternType="gray125"/></fill></fills>` +
		`<borders count="1"><border><left/><right/><top/><bottom/><diagonal/></border></borders>` +
		`<cellStyleXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0"/></cellStyleXfs>` +
		`<cellXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0" xfId="0"/></cellXfs>` +
		`<cellStyles count="1"><cellStyle name="Normal" xfId="0" builtinId="0"/></cellStyles>` +
		`</styleSheet>`)
}

// ── escaping ──────────────────────────────────────────────────────────────────

func writeT(b *bytes.Buffer, s string) {
	if len(s) > 0 && (s[0] == ' ' || s[len(s)-1] == ' ' || s[0] == '\t' || s[len(s)-1] == '\t' || s[0] == '\n' || s[len(s)-1] == '\n') {
		b.WriteString(`<t xml:space="preserve">`)
	} else {
		b.WriteString(`<t>`)
	}
	escText(b, s)
	b.WriteString(`</t>`)
}

func escText(b *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteByte(s[i])
		}
	}
}

func escAttr(b *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteByte(s[i])
		}
	}
}
