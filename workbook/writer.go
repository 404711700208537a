package workbook

import (
	"bytes"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/TsubasaBE/go-xlsx/cellref"
	"github.com/TsubasaBE/go-xlsx/internal/container"
	"github.com/TsubasaBE/go-xlsx/internal/rels"
	"github.com/TsubasaBE/go-xlsx/styles"
	"github.com/TsubasaBE/go-xlsx/worksheet"
	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

const (
	nsSpreadsheet  = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	nsRelationship = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsContentTypes = "http://schemas.openxmlformats.org/package/2006/content-types"

	xmlDecl = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
)

// Save writes the workbook to path, replacing any existing file only after
// the archive has been fully and successfully produced.
func (wb *Workbook) Save(path string) error {
	if len(wb.sheets) == 0 {
		return xlsxerr.New(xlsxerr.NoWorksheets, "cannot save a workbook with no worksheets")
	}
	return container.WriteFile(path, wb.Compression, func(w *container.Writer) error {
		return wb.writeArchive(w)
	})
}

// SaveWriter streams the archive to out.
func (wb *Workbook) SaveWriter(out io.Writer) error {
	if len(wb.sheets) == 0 {
		return xlsxerr.New(xlsxerr.NoWorksheets, "cannot save a workbook with no worksheets")
	}
	w := container.NewWriter(out, wb.Compression)
	if err := wb.writeArchive(w); err != nil {
		return err
	}
	return w.Close()
}

// SaveBytes renders the workbook to an in-memory archive.
func (wb *Workbook) SaveBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := wb.SaveWriter(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ── shared-string census ──────────────────────────────────────────────────────

// census is the pre-save pass over every string cell.  Strings referenced
// at least twice are pooled into sharedStrings.xml in first-appearance
// order; singletons are written inline to keep the pool lean.
type census struct {
	entries []string       // pooled strings in emission order
	index   map[string]int // content → pooled index
	refs    int            // total references to pooled strings
}

func (wb *Workbook) runCensus() *census {
	counts := make(map[string]int)
	order := make([]string, 0, 64)
	for _, ws := range wb.sheets {
		for _, k := range ws.SortedKeys() {
			cv := ws.At(k)
			// Formula caches are always written as t="str" and error cells
			// keep their t="e" body, so neither participates in the pool.
			if cv.Value.Kind() == worksheet.KindString && cv.TypeHint == "" && cv.Formula == "" {
				s := cv.Value.Text()
				if counts[s] == 0 {
					order = append(order, s)
				}
				counts[s]++
			}
		}
	}
	c := &census{index: make(map[string]int)}
	for _, s := range order {
		if counts[s] >= 2 {
			c.index[s] = len(c.entries)
			c.entries = append(c.entries, s)
			c.refs += counts[s]
		}
	}
	return c
}

// ── archive assembly ──────────────────────────────────────────────────────────

// sheetAux is the per-sheet relationship plan: which auxiliary parts exist
// and which relationship IDs the worksheet XML must reference.
type sheetAux struct {
	relsEntries  []rels.Rel
	commentsPart string
	tableRelIDs  []string
	tableParts   []string // part names parallel to ws.Tables
	linkRelIDs   map[worksheet.Key]string
}

// writeArchive emits every part in the fixed order the format readers
// expect.
func (wb *Workbook) writeArchive(w *container.Writer) error {
	cns := wb.runCensus()
	hasSST := len(cns.entries) > 0

	aux := make([]sheetAux, len(wb.sheets))
	nextTableID := 1
	for i, ws := range wb.sheets {
		aux[i] = wb.planSheetAux(ws, i+1, &nextTableID)
	}

	if err := w.Put("[Content_Types].xml", wb.contentTypes(hasSST, aux)); err != nil {
		return err
	}
	if err := w.Put("_rels/.rels", rootRels()); err != nil {
		return err
	}
	if err := w.Put("xl/_rels/workbook.xml.rels", wb.workbookRels(hasSST)); err != nil {
		return err
	}
	if err := w.Put("xl/workbook.xml", wb.workbookXML()); err != nil {
		return err
	}
	if hasSST {
		if err := w.Put("xl/sharedStrings.xml", wb.sharedStringsXML(cns)); err != nil {
			return err
		}
	}
	if err := w.Put("xl/styles.xml", stylesXML(wb.catalog)); err != nil {
		return err
	}
	for i, ws := range wb.sheets {
		sheetXML, err := wb.worksheetXML(ws, aux[i], cns)
		if err != nil {
			return err
		}
		name := "xl/worksheets/sheet" + strconv.Itoa(i+1) + ".xml"
		if err := w.Put(name, sheetXML); err != nil {
			return err
		}
		if len(aux[i].relsEntries) > 0 {
			if err := w.Put(relsPathFor(name), rels.Marshal(aux[i].relsEntries)); err != nil {
				return err
			}
		}
	}
	for i, ws := range wb.sheets {
		if aux[i].commentsPart != "" {
			if err := w.Put(aux[i].commentsPart, commentsXML(ws)); err != nil {
				return err
			}
		}
		for j, part := range aux[i].tableParts {
			if err := w.Put(part, tableXML(ws.Tables[j])); err != nil {
				return err
			}
		}
	}
	if err := w.Put("docProps/app.xml", appPropsXML()); err != nil {
		return err
	}
	return w.Put("docProps/core.xml", corePropsXML())
}

// planSheetAux assigns part names and relationship IDs for one sheet's
// auxiliary parts.  Relationship IDs are local to the sheet's .rels file.
func (wb *Workbook) planSheetAux(ws *worksheet.Worksheet, sheetNum int, nextTableID *int) sheetAux {
	var a sheetAux
	a.linkRelIDs = make(map[worksheet.Key]string)
	next := 1
	rid := func() string {
		id := "rId" + strconv.Itoa(next)
		next++
		return id
	}
	for range ws.Tables {
		part := "xl/tables/table" + strconv.Itoa(*nextTableID) + ".xml"
		*nextTableID++
		id := rid()
		a.tableRelIDs = append(a.tableRelIDs, id)
		a.tableParts = append(a.tableParts, part)
		a.relsEntries = append(a.relsEntries, rels.Rel{
			ID: id, Type: rels.TypeTable, Target: "../tables/" + part[len("xl/tables/"):],
		})
	}
	if ws.CommentCount() > 0 {
		a.commentsPart = "xl/comments/comment" + strconv.Itoa(sheetNum) + ".xml"
		a.relsEntries = append(a.relsEntries, rels.Rel{
			ID: rid(), Type: rels.TypeComments, Target: "../comments/comment" + strconv.Itoa(sheetNum) + ".xml",
		})
	}
	for _, k := range ws.HyperlinkKeys() {
		h, _ := ws.Hyperlink(k.Row(), k.Col())
		if h.Target == "" {
			continue // location-only links carry no relationship
		}
		id := rid()
		a.linkRelIDs[k] = id
		a.relsEntries = append(a.relsEntries, rels.Rel{
			ID: id, Type: rels.TypeHyperlink, Target: h.Target, TargetMode: "External",
		})
	}
	return a
}

// ── fixed parts ───────────────────────────────────────────────────────────────

func (wb *Workbook) contentTypes(hasSST bool, aux []sheetAux) []byte {
	var b bytes.Buffer
	b.WriteString(xmlDecl)
	b.WriteString(`<Types xmlns="` + nsContentTypes + `">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>`)
	if hasSST {
		b.WriteString(`<Override PartName="/xl/sharedStrings.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"/>`)
	}
	b.WriteString(`<Override PartName="/xl/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"/>`)
	for i := range wb.sheets {
		b.WriteString(`<Override PartName="/xl/worksheets/sheet` + strconv.Itoa(i+1) + `.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>`)
	}
	for i := range aux {
		if aux[i].commentsPart != "" {
			b.WriteString(`<Override PartName="/` + aux[i].commentsPart + `" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.comments+xml"/>`)
		}
		for _, part := range aux[i].tableParts {
			b.WriteString(`<Override PartName="/` + part + `" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.table+xml"/>`)
		}
	}
	b.WriteString(`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`)
	b.WriteString(`<Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>`)
	b.WriteString(`</Types>`)
	return b.Bytes()
}

func rootRels() []byte {
	return rels.Marshal([]rels.Rel{
		{ID: "rId1", Type: rels.TypeOfficeDocument, Target: "xl/workbook.xml"},
		{ID: "rId2", Type: rels.TypeCoreProps, Target: "docProps/core.xml"},
		{ID: "rId3", Type: rels.TypeExtendedProps, Target: "docProps/app.xml"},
	})
}

func (wb *Workbook) workbookRels(hasSST bool) []byte {
	entries := make([]rels.Rel, 0, len(wb.sheets)+2)
	for i := range wb.sheets {
		entries = append(entries, rels.Rel{
			ID:     "rId" + strconv.Itoa(i+1),
			Type:   rels.TypeWorksheet,
			Target: "worksheets/sheet" + strconv.Itoa(i+1) + ".xml",
		})
	}
	entries = append(entries, rels.Rel{
		ID: "rId" + strconv.Itoa(len(wb.sheets)+1), Type: rels.TypeStyles, Target: "styles.xml",
	})
	if hasSST {
		entries = append(entries, rels.Rel{
			ID: "rId" + strconv.Itoa(len(wb.sheets)+2), Type: rels.TypeSharedStrings, Target: "sharedStrings.xml",
		})
	}
	return rels.Marshal(entries)
}

func (wb *Workbook) workbookXML() []byte {
	var b bytes.Buffer
	b.WriteString(xmlDecl)
	b.WriteString(`<workbook xmlns="` + nsSpreadsheet + `" xmlns:r="` + nsRelationship + `">`)
	if wb.Date1904 {
		b.WriteString(`<workbookPr date1904="1"/>`)
	}
	b.WriteString(`<sheets>`)
	for i, ws := range wb.sheets {
		b.WriteString(`<sheet name="`)
		writeEscAttr(&b, ws.Name())
		b.WriteString(`" sheetId="` + strconv.FormatUint(uint64(ws.SheetID()), 10) + `"`)
		if state := wb.visibility[i]; state != SheetVisible {
			b.WriteString(` state="` + state + `"`)
		}
		b.WriteString(` r:id="rId` + strconv.Itoa(i+1) + `"/>`)
	}
	b.WriteString(`</sheets>`)
	if len(wb.definedNames) > 0 {
		b.WriteString(`<definedNames>`)
		for _, dn := range wb.definedNames {
			b.WriteString(`<definedName name="`)
			writeEscAttr(&b, dn.Name)
			b.WriteString(`"`)
			if dn.SheetIndex >= 0 {
				b.WriteString(` localSheetId="` + strconv.Itoa(dn.SheetIndex) + `"`)
			}
			b.WriteString(`>`)
			writeEscText(&b, dn.RefersTo)
			b.WriteString(`</definedName>`)
		}
		b.WriteString(`</definedNames>`)
	}
	b.WriteString(`</workbook>`)
	return b.Bytes()
}

func (wb *Workbook) sharedStringsXML(cns *census) []byte {
	var b bytes.Buffer
	b.WriteString(xmlDecl)
	b.WriteString(`<sst xmlns="` + nsSpreadsheet + `" count="` + strconv.Itoa(cns.refs) +
		`" uniqueCount="` + strconv.Itoa(len(cns.entries)) + `">`)
	for _, s := range cns.entries {
		if markup, ok := wb.preservedMarkup(s); ok {
			b.WriteString(`<si>`)
			b.WriteString(markup)
			b.WriteString(`</si>`)
			continue
		}
		b.WriteString(`<si>`)
		writeTElement(&b, s)
		b.WriteString(`</si>`)
	}
	b.WriteString(`</sst>`)
	return b.Bytes()
}

// writeTElement writes a <t> element, flagging xml:space when the content
// carries significant leading or trailing whitespace.
func writeTElement(b *bytes.Buffer, s string) {
	if needsSpacePreserve(s) {
		b.WriteString(`<t xml:space="preserve">`)
	} else {
		b.WriteString(`<t>`)
	}
	writeEscText(b, s)
	b.WriteString(`</t>`)
}

func needsSpacePreserve(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[0] == '\t' || s[0] == '\n' ||
		s[len(s)-1] == ' ' || s[len(s)-1] == '\t' || s[len(s)-1] == '\n'
}

func appPropsXML() []byte {
	return []byte(xmlDecl +
		`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
		`<Application>go-xlsx</Application>` +
		`</Properties>`)
}

func corePropsXML() []byte {
	return []byte(xmlDecl +
		`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">` +
		`<dc:creator>go-xlsx</dc:creator>` +
		`</cp:coreProperties>`)
}

// ── styles part ───────────────────────────────────────────────────────────────

func stylesXML(cat *styles.Catalog) []byte {
	var b bytes.Buffer
	b.WriteString(xmlDecl)
	b.WriteString(`<styleSheet xmlns="` + nsSpreadsheet + `">`)

	if custom := cat.NumFmts(); len(custom) > 0 {
		b.WriteString(`<numFmts count="` + strconv.Itoa(len(custom)) + `">`)
		for _, nf := range custom {
			b.WriteString(`<numFmt numFmtId="` + strconv.Itoa(nf.ID) + `" formatCode="`)
			writeEscAttr(&b, nf.Format)
			b.WriteString(`"/>`)
		}
		b.WriteString(`</numFmts>`)
	}

	b.WriteString(`<fonts count="` + strconv.Itoa(cat.FontCount()) + `">`)
	for i := 0; i < cat.FontCount(); i++ {
		writeFont(&b, cat.Font(uint32(i)))
	}
	b.WriteString(`</fonts>`)

	b.WriteString(`<fills count="` + strconv.Itoa(cat.FillCount()) + `">`)
	for i := 0; i < cat.FillCount(); i++ {
		writeFill(&b, cat.Fill(uint32(i)))
	}
	b.WriteString(`</fills>`)

	b.WriteString(`<borders count="` + strconv.Itoa(cat.BorderCount()) + `">`)
	for i := 0; i < cat.BorderCount(); i++ {
		writeBorder(&b, cat.Border(uint32(i)))
	}
	b.WriteString(`</borders>`)

	b.WriteString(`<cellStyleXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0"/></cellStyleXfs>`)

	b.WriteString(`<cellXfs count="` + strconv.Itoa(cat.XFCount()) + `">`)
	for i := 0; i < cat.XFCount(); i++ {
		writeXF(&b, cat.XF(styles.Handle(i)))
	}
	b.WriteString(`</cellXfs>`)

	b.WriteString(`<cellStyles count="1"><cellStyle name="Normal" xfId="0" builtinId="0"/></cellStyles>`)
	b.WriteString(`</styleSheet>`)
	return b.Bytes()
}

func writeColor(b *bytes.Buffer, element, color string) {
	if color == "" {
		return
	}
	switch {
	case strings.HasPrefix(color, "theme:"):
		b.WriteString(`<` + element + ` theme="` + color[len("theme:"):] + `"/>`)
	case color == "auto":
		b.WriteString(`<` + element + ` auto="1"/>`)
	default:
		b.WriteString(`<` + element + ` rgb="`)
		writeEscAttr(b, color)
		b.WriteString(`"/>`)
	}
}

func writeFont(b *bytes.Buffer, f styles.Font) {
	b.WriteString(`<font>`)
	if f.Bold {
		b.WriteString(`<b/>`)
	}
	if f.Italic {
		b.WriteString(`<i/>`)
	}
	if f.Underline {
		b.WriteString(`<u/>`)
	}
	if f.Strike {
		b.WriteString(`<strike/>`)
	}
	if f.VertAlign != "" {
		b.WriteString(`<vertAlign val="` + f.VertAlign + `"/>`)
	}
	if f.Size > 0 {
		b.WriteString(`<sz val="` + strconv.FormatFloat(f.Size, 'G', -1, 64) + `"/>`)
	}
	writeColor(b, "color", f.Color)
	if f.Name != "" {
		b.WriteString(`<name val="`)
		writeEscAttr(b, f.Name)
		b.WriteString(`"/>`)
	}
	b.WriteString(`</font>`)
}

func writeFill(b *bytes.Buffer, f styles.Fill) {
	pattern := f.Pattern
	if pattern == "" {
		pattern = "none"
	}
	b.WriteString(`<fill><patternFill patternType="` + pattern + `"`)
	if f.FgColor == "" && f.BgColor == "" {
		b.WriteString(`/></fill>`)
		return
	}
	b.WriteString(`>`)
	writeColor(b, "fgColor", f.FgColor)
	writeColor(b, "bgColor", f.BgColor)
	b.WriteString(`</patternFill></fill>`)
}

func writeBorderEdge(b *bytes.Buffer, name string, e styles.BorderEdge) {
	if e == (styles.BorderEdge{}) {
		b.WriteString(`<` + name + `/>`)
		return
	}
	b.WriteString(`<` + name)
	if e.Style != "" {
		b.WriteString(` style="` + e.Style + `"`)
	}
	if e.Color == "" {
		b.WriteString(`/>`)
		return
	}
	b.WriteString(`>`)
	writeColor(b, "color", e.Color)
	b.WriteString(`</` + name + `>`)
}

func writeBorder(b *bytes.Buffer, bd styles.Border) {
	b.WriteString(`<border>`)
	writeBorderEdge(b, "left", bd.Left)
	writeBorderEdge(b, "right", bd.Right)
	writeBorderEdge(b, "top", bd.Top)
	writeBorderEdge(b, "bottom", bd.Bottom)
	writeBorderEdge(b, "diagonal", bd.Diagonal)
	b.WriteString(`</border>`)
}

func boolAttr(b *bytes.Buffer, name string, v bool) {
	if v {
		b.WriteString(` ` + name + `="1"`)
	}
}

func writeXF(b *bytes.Buffer, xf styles.XF) {
	b.WriteString(`<xf numFmtId="` + strconv.FormatUint(uint64(xf.NumFmtID), 10) +
		`" fontId="` + strconv.FormatUint(uint64(xf.FontID), 10) +
		`" fillId="` + strconv.FormatUint(uint64(xf.FillID), 10) +
		`" borderId="` + strconv.FormatUint(uint64(xf.BorderID), 10) + `" xfId="0"`)
	boolAttr(b, "applyFont", xf.ApplyFont)
	boolAttr(b, "applyFill", xf.ApplyFill)
	boolAttr(b, "applyBorder", xf.ApplyBorder)
	boolAttr(b, "applyNumberFormat", xf.ApplyNumberFmt)
	boolAttr(b, "applyAlignment", xf.ApplyAlignment)
	boolAttr(b, "applyProtection", xf.ApplyProtect)
	if !xf.HasAlignment && !xf.HasProtection {
		b.WriteString(`/>`)
		return
	}
	b.WriteString(`>`)
	if xf.HasAlignment {
		a := xf.Alignment
		b.WriteString(`<alignment`)
		if a.Horizontal != "" {
			b.WriteString(` horizontal="` + a.Horizontal + `"`)
		}
		if a.Vertical != "" {
			b.WriteString(` vertical="` + a.Vertical + `"`)
		}
		boolAttr(b, "wrapText", a.WrapText)
		if a.TextRotation != 0 {
			b.WriteString(` textRotation="` + strconv.Itoa(a.TextRotation) + `"`)
		}
		if a.Indent != 0 {
			b.WriteString(` indent="` + strconv.Itoa(a.Indent) + `"`)
		}
		boolAttr(b, "shrinkToFit", a.ShrinkToFit)
		b.WriteString(`/>`)
	}
	if xf.HasProtection {
		b.WriteString(`<protection locked="` + zeroOne(xf.Protection.Locked) +
			`" hidden="` + zeroOne(xf.Protection.Hidden) + `"/>`)
	}
	b.WriteString(`</xf>`)
}

func zeroOne(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// ── worksheet part ────────────────────────────────────────────────────────────

// rowEntry describes one emitted <row>: the half-open key range of its
// cells within the sorted key slice, plus any row dimension attributes.
type rowEntry struct {
	row    uint32
	ki, kj int
	dim    worksheet.RowDim
	hasDim bool
}

func (wb *Workbook) worksheetXML(ws *worksheet.Worksheet, a sheetAux, cns *census) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(xmlDecl)
	b.WriteString(`<worksheet xmlns="` + nsSpreadsheet + `" xmlns:r="` + nsRelationship + `">`)

	if ws.TabColor != "" {
		b.WriteString(`<sheetPr>`)
		writeColor(&b, "tabColor", ws.TabColor)
		b.WriteString(`</sheetPr>`)
	}

	r1, c1, r2, c2, occupied := ws.UsedRange()
	b.WriteString(`<dimension ref="`)
	switch {
	case !occupied:
		b.WriteString("A1")
	case r1 == r2 && c1 == c2:
		b.WriteString(cellref.Format(r1, c1))
	default:
		b.WriteString(cellref.FormatRange(r1, c1, r2, c2))
	}
	b.WriteString(`"/>`)

	if v := ws.SheetView; v != nil {
		b.WriteString(`<sheetViews><sheetView workbookViewId="0"`)
		if v.HideGridLines {
			b.WriteString(` showGridLines="0"`)
		}
		boolAttr(&b, "tabSelected", v.TabSelected)
		if v.FrozenRows > 0 || v.FrozenCols > 0 {
			b.WriteString(`><pane`)
			if v.FrozenCols > 0 {
				b.WriteString(` xSplit="` + strconv.FormatUint(uint64(v.FrozenCols), 10) + `"`)
			}
			if v.FrozenRows > 0 {
				b.WriteString(` ySplit="` + strconv.FormatUint(uint64(v.FrozenRows), 10) + `"`)
			}
			b.WriteString(` topLeftCell="` + cellref.Format(v.FrozenRows+1, v.FrozenCols+1) + `" state="frozen"/>`)
			b.WriteString(`</sheetView></sheetViews>`)
		} else {
			b.WriteString(`/></sheetViews>`)
		}
	}

	if pr := ws.FormatPr; pr != nil {
		b.WriteString(`<sheetFormatPr`)
		if pr.HasRowHeight {
			b.WriteString(` defaultRowHeight="` + strconv.FormatFloat(pr.DefaultRowHeight, 'G', -1, 64) + `"`)
		}
		if pr.HasColWidth {
			b.WriteString(` defaultColWidth="` + strconv.FormatFloat(pr.DefaultColWidth, 'G', -1, 64) + `"`)
		}
		b.WriteString(`/>`)
	}

	if dims := ws.ColDims(); len(dims) > 0 {
		b.WriteString(`<cols>`)
		for _, d := range dims {
			b.WriteString(`<col min="` + strconv.FormatUint(uint64(d.Min), 10) +
				`" max="` + strconv.FormatUint(uint64(d.Max), 10) + `"`)
			if d.HasWidth {
				b.WriteString(` width="` + strconv.FormatFloat(d.Width, 'G', -1, 64) + `" customWidth="1"`)
			}
			boolAttr(&b, "hidden", d.Hidden)
			if d.HasStyle {
				b.WriteString(` style="` + strconv.FormatUint(uint64(d.Style), 10) + `"`)
			}
			b.WriteString(`/>`)
		}
		b.WriteString(`</cols>`)
	}

	b.WriteString(`<sheetData>`)
	if err := wb.writeSheetData(&b, ws, cns); err != nil {
		return nil, err
	}
	b.WriteString(`</sheetData>`)

	if p := ws.Protection; p != nil && p.Sheet {
		writeProtection(&b, p)
	}
	if ws.AutoFilter != "" {
		b.WriteString(`<autoFilter ref="`)
		writeEscAttr(&b, ws.AutoFilter)
		b.WriteString(`"/>`)
	}
	if merges := ws.Merges(); len(merges) > 0 {
		b.WriteString(`<mergeCells count="` + strconv.Itoa(len(merges)) + `">`)
		for _, m := range merges {
			b.WriteString(`<mergeCell ref="` + m.Ref() + `"/>`)
		}
		b.WriteString(`</mergeCells>`)
	}
	for _, cf := range ws.CondFormats {
		b.WriteString(`<conditionalFormatting sqref="`)
		writeEscAttr(&b, cf.Ref)
		b.WriteString(`">`)
		for _, rule := range cf.Rules {
			b.WriteString(`<cfRule type="` + rule.Type + `"`)
			if rule.Operator != "" {
				b.WriteString(` operator="` + rule.Operator + `"`)
			}
			b.WriteString(` priority="` + strconv.Itoa(rule.Priority) + `"`)
			if rule.HasDxf {
				b.WriteString(` dxfId="` + strconv.Itoa(rule.DxfID) + `"`)
			}
			if rule.Text != "" {
				b.WriteString(` text="`)
				writeEscAttr(&b, rule.Text)
				b.WriteString(`"`)
			}
			b.WriteString(`>`)
			for _, f := range rule.Formulas {
				b.WriteString(`<formula>`)
				writeEscText(&b, f)
				b.WriteString(`</formula>`)
			}
			b.WriteString(`</cfRule>`)
		}
		b.WriteString(`</conditionalFormatting>`)
	}
	if len(ws.Validations) > 0 {
		b.WriteString(`<dataValidations count="` + strconv.Itoa(len(ws.Validations)) + `">`)
		for _, dv := range ws.Validations {
			b.WriteString(`<dataValidation type="` + dv.Type + `"`)
			if dv.Operator != "" {
				b.WriteString(` operator="` + dv.Operator + `"`)
			}
			boolAttr(&b, "allowBlank", dv.AllowBlank)
			boolAttr(&b, "showInputMessage", dv.ShowInput)
			boolAttr(&b, "showErrorMessage", dv.ShowError)
			if dv.ErrorTitle != "" {
				b.WriteString(` errorTitle="`)
				writeEscAttr(&b, dv.ErrorTitle)
				b.WriteString(`"`)
			}
			if dv.ErrorMessage != "" {
				b.WriteString(` error="`)
				writeEscAttr(&b, dv.ErrorMessage)
				b.WriteString(`"`)
			}
			if dv.PromptTitle != "" {
				b.WriteString(` promptTitle="`)
				writeEscAttr(&b, dv.PromptTitle)
				b.WriteString(`"`)
			}
			if dv.PromptMsg != "" {
				b.WriteString(` prompt="`)
				writeEscAttr(&b, dv.PromptMsg)
				b.WriteString(`"`)
			}
			b.WriteString(` sqref="`)
			writeEscAttr(&b, dv.Ref)
			b.WriteString(`">`)
			if dv.Formula1 != "" {
				b.WriteString(`<formula1>`)
				writeEscText(&b, dv.Formula1)
				b.WriteString(`</formula1>`)
			}
			if dv.Formula2 != "" {
				b.WriteString(`<formula2>`)
				writeEscText(&b, dv.Formula2)
				b.WriteString(`</formula2>`)
			}
			b.WriteString(`</dataValidation>`)
		}
		b.WriteString(`</dataValidations>`)
	}
	if ws.HyperlinkCount() > 0 {
		b.WriteString(`<hyperlinks>`)
		for _, k := range ws.HyperlinkKeys() {
			h, _ := ws.Hyperlink(k.Row(), k.Col())
			b.WriteString(`<hyperlink ref="` + cellref.Format(k.Row(), k.Col()) + `"`)
			if id, ok := a.linkRelIDs[k]; ok {
				b.WriteString(` r:id="` + id + `"`)
			}
			if h.Location != "" {
				b.WriteString(` location="`)
				writeEscAttr(&b, h.Location)
				b.WriteString(`"`)
			}
			if h.Tooltip != "" {
				b.WriteString(` tooltip="`)
				writeEscAttr(&b, h.Tooltip)
				b.WriteString(`"`)
			}
			b.WriteString(`/>`)
		}
		b.WriteString(`</hyperlinks>`)
	}
	if m := ws.Margins; m != nil {
		b.WriteString(`<pageMargins left="` + strconv.FormatFloat(m.Left, 'G', -1, 64) +
			`" right="` + strconv.FormatFloat(m.Right, 'G', -1, 64) +
			`" top="` + strconv.FormatFloat(m.Top, 'G', -1, 64) +
			`" bottom="` + strconv.FormatFloat(m.Bottom, 'G', -1, 64) +
			`" header="` + strconv.FormatFloat(m.Header, 'G', -1, 64) +
			`" footer="` + strconv.FormatFloat(m.Footer, 'G', -1, 64) + `"/>`)
	}
	if s := ws.Setup; s != nil {
		b.WriteString(`<pageSetup`)
		if s.PaperSize != 0 {
			b.WriteString(` paperSize="` + strconv.Itoa(s.PaperSize) + `"`)
		}
		if s.Scale != 0 {
			b.WriteString(` scale="` + strconv.Itoa(s.Scale) + `"`)
		}
		if s.FitToWidth != 0 {
			b.WriteString(` fitToWidth="` + strconv.Itoa(s.FitToWidth) + `"`)
		}
		if s.FitToHeight != 0 {
			b.WriteString(` fitToHeight="` + strconv.Itoa(s.FitToHeight) + `"`)
		}
		if s.Orientation != "" {
			b.WriteString(` orientation="` + s.Orientation + `"`)
		}
		b.WriteString(`/>`)
	}
	if hf := ws.HeaderFooter; hf != nil {
		b.WriteString(`<headerFooter>`)
		if hf.OddHeader != "" {
			b.WriteString(`<oddHeader>`)
			writeEscText(&b, hf.OddHeader)
			b.WriteString(`</oddHeader>`)
		}
		if hf.OddFooter != "" {
			b.WriteString(`<oddFooter>`)
			writeEscText(&b, hf.OddFooter)
			b.WriteString(`</oddFooter>`)
		}
		b.WriteString(`</headerFooter>`)
	}
	if len(a.tableRelIDs) > 0 {
		b.WriteString(`<tableParts count="` + strconv.Itoa(len(a.tableRelIDs)) + `">`)
		for _, id := range a.tableRelIDs {
			b.WriteString(`<tablePart r:id="` + id + `"/>`)
		}
		b.WriteString(`</tableParts>`)
	}
	b.WriteString(`</worksheet>`)
	return b.Bytes(), nil
}

func writeProtection(b *bytes.Buffer, p *worksheet.Protection) {
	b.WriteString(`<sheetProtection sheet="1"`)
	if p.Password != "" {
		b.WriteString(` password="`)
		writeEscAttr(b, p.Password)
		b.WriteString(`"`)
	}
	boolAttr(b, "selectLockedCells", p.SelectLockedCells)
	boolAttr(b, "selectUnlockedCells", p.SelectUnlockedCells)
	boolAttr(b, "formatCells", p.FormatCells)
	boolAttr(b, "formatColumns", p.FormatColumns)
	boolAttr(b, "formatRows", p.FormatRows)
	boolAttr(b, "insertColumns", p.InsertColumns)
	boolAttr(b, "insertRows", p.InsertRows)
	boolAttr(b, "insertHyperlinks", p.InsertHyperlinks)
	boolAttr(b, "deleteColumns", p.DeleteColumns)
	boolAttr(b, "deleteRows", p.DeleteRows)
	boolAttr(b, "sort", p.Sort)
	boolAttr(b, "autoFilter", p.AutoFilter)
	boolAttr(b, "pivotTables", p.PivotTables)
	boolAttr(b, "objects", p.Objects)
	boolAttr(b, "scenarios", p.Scenarios)
	b.WriteString(`/>`)
}

// buildRowEntries merges the sorted cell keys with dimension-only rows
// into the ordered row list sheetData emission works from.
func buildRowEntries(ws *worksheet.Worksheet, keys []worksheet.Key) []rowEntry {
	var entries []rowEntry
	i := 0
	for i < len(keys) {
		row := keys[i].Row()
		j := i
		for j < len(keys) && keys[j].Row() == row {
			j++
		}
		e := rowEntry{row: row, ki: i, kj: j}
		if d, ok := ws.RowDim(row); ok {
			e.dim = d
			e.hasDim = true
		}
		entries = append(entries, e)
		i = j
	}
	// Rows that exist only as a dimension entry (explicit height on an
	// otherwise empty row) still get a <row> element.
	present := make(map[uint32]bool, len(entries))
	for _, e := range entries {
		present[e.row] = true
	}
	var extra []rowEntry
	for _, row := range ws.RowDimRows() {
		if !present[row] {
			d, _ := ws.RowDim(row)
			extra = append(extra, rowEntry{row: row, dim: d, hasDim: true})
		}
	}
	if len(extra) > 0 {
		entries = append(entries, extra...)
		sortRowEntries(entries)
	}
	return entries
}

func sortRowEntries(entries []rowEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].row < entries[j].row })
}

// writeSheetData emits the <row> blocks.  Large sheets are partitioned
// into fixed row-count chunks rendered concurrently; the chunk buffers are
// concatenated in order, so the output is byte-identical to the serial
// path.
func (wb *Workbook) writeSheetData(b *bytes.Buffer, ws *worksheet.Worksheet, cns *census) error {
	keys := ws.SortedKeys()
	entries := buildRowEntries(ws, keys)
	if len(entries) == 0 {
		return nil
	}

	chunkRows := wb.ParallelChunkRows
	if chunkRows <= 0 {
		chunkRows = 5000
	}
	if len(entries) <= wb.ParallelRowThreshold || len(entries) <= chunkRows {
		wb.renderRows(b, ws, keys, entries, cns)
		return nil
	}

	var chunks [][]rowEntry
	for start := 0; start < len(entries); start += chunkRows {
		end := start + chunkRows
		if end > len(entries) {
			end = len(entries)
		}
		chunks = append(chunks, entries[start:end])
	}
	bufs := make([]bytes.Buffer, len(chunks))
	var g errgroup.Group
	for ci := range chunks {
		ci := ci
		g.Go(func() error {
			wb.renderRows(&bufs[ci], ws, keys, chunks[ci], cns)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := range bufs {
		b.Write(bufs[i].Bytes())
	}
	return nil
}

func (wb *Workbook) renderRows(b *bytes.Buffer, ws *worksheet.Worksheet, keys []worksheet.Key, entries []rowEntry, cns *census) {
	var scratch []byte
	for _, e := range entries {
		b.WriteString(`<row r="` + strconv.FormatUint(uint64(e.row), 10) + `"`)
		if e.hasDim {
			if e.dim.HasHeight {
				b.WriteString(` ht="` + strconv.FormatFloat(e.dim.Height, 'G', -1, 64) + `" customHeight="1"`)
			}
			boolAttr(b, "hidden", e.dim.Hidden)
			if e.dim.OutlineLevel > 0 {
				b.WriteString(` outlineLevel="` + strconv.Itoa(int(e.dim.OutlineLevel)) + `"`)
			}
		}
		if e.ki == e.kj {
			b.WriteString(`/>`)
			continue
		}
		b.WriteString(`>`)
		for _, k := range keys[e.ki:e.kj] {
			scratch = wb.renderCell(b, ws, k, cns, scratch)
		}
		b.WriteString(`</row>`)
	}
}

// renderCell emits one <c> element.  scratch is a reusable byte buffer for
// reference formatting, returned for the next call.
func (wb *Workbook) renderCell(b *bytes.Buffer, ws *worksheet.Worksheet, k worksheet.Key, cns *census, scratch []byte) []byte {
	cv := ws.At(k)
	scratch = cellref.AppendFormat(scratch[:0], k.Row(), k.Col())
	b.WriteString(`<c r="`)
	b.Write(scratch)
	b.WriteString(`"`)
	if cv.Style != styles.Default {
		b.WriteString(` s="` + strconv.FormatUint(uint64(cv.Style), 10) + `"`)
	}

	if cv.Formula != "" {
		switch {
		case cv.TypeHint == "e":
			b.WriteString(` t="e"`)
		case cv.Value.Kind() == worksheet.KindString:
			b.WriteString(` t="str"`)
		case cv.Value.Kind() == worksheet.KindBool:
			b.WriteString(` t="b"`)
		}
		b.WriteString(`><f>`)
		writeEscText(b, cv.Formula)
		b.WriteString(`</f>`)
		switch cv.Value.Kind() {
		case worksheet.KindNumber:
			b.WriteString(`<v>` + strconv.FormatFloat(cv.Value.Float(), 'G', -1, 64) + `</v>`)
		case worksheet.KindBool:
			b.WriteString(`<v>` + zeroOne(cv.Value.Bool()) + `</v>`)
		case worksheet.KindString:
			b.WriteString(`<v>`)
			writeEscText(b, cv.Value.Text())
			b.WriteString(`</v>`)
		}
		b.WriteString(`</c>`)
		return scratch
	}

	switch cv.Value.Kind() {
	case worksheet.KindEmpty:
		b.WriteString(`/>`)
	case worksheet.KindNumber:
		b.WriteString(`><v>` + strconv.FormatFloat(cv.Value.Float(), 'G', -1, 64) + `</v></c>`)
	case worksheet.KindBool:
		b.WriteString(` t="b"><v>` + zeroOne(cv.Value.Bool()) + `</v></c>`)
	case worksheet.KindDate:
		b.WriteString(` t="d"><v>`)
		writeEscText(b, cv.Value.Text())
		b.WriteString(`</v></c>`)
	case worksheet.KindString:
		s := cv.Value.Text()
		if cv.TypeHint != "" {
			// Error cells and unknown types keep their original t= and raw
			// text body.
			b.WriteString(` t="`)
			writeEscAttr(b, cv.TypeHint)
			b.WriteString(`"><v>`)
			writeEscText(b, s)
			b.WriteString(`</v></c>`)
			break
		}
		if idx, pooled := cns.index[s]; pooled {
			b.WriteString(` t="s"><v>` + strconv.Itoa(idx) + `</v></c>`)
			break
		}
		b.WriteString(` t="inlineStr"><is>`)
		writeTElement(b, s)
		b.WriteString(`</is></c>`)
	default:
		b.WriteString(`/>`)
	}
	return scratch
}

// ── comments and table parts ──────────────────────────────────────────────────

func commentsXML(ws *worksheet.Worksheet) []byte {
	var b bytes.Buffer
	b.WriteString(xmlDecl)
	b.WriteString(`<comments xmlns="` + nsSpreadsheet + `">`)
	b.WriteString(`<authors><author></author></authors>`)
	b.WriteString(`<commentList>`)
	for _, k := range ws.CommentKeys() {
		text, _ := ws.Comment(k.Row(), k.Col())
		b.WriteString(`<comment ref="` + cellref.Format(k.Row(), k.Col()) + `" authorId="0"><text>`)
		writeTElement(&b, text)
		b.WriteString(`</text></comment>`)
	}
	b.WriteString(`</commentList>`)
	b.WriteString(`</comments>`)
	return b.Bytes()
}

func tableXML(t worksheet.Table) []byte {
	var b bytes.Buffer
	b.WriteString(xmlDecl)
	b.WriteString(`<table xmlns="` + nsSpreadsheet + `" id="` + strconv.Itoa(t.ID) + `" name="`)
	writeEscAttr(&b, t.Name)
	b.WriteString(`" displayName="`)
	writeEscAttr(&b, t.DisplayName)
	b.WriteString(`" ref="`)
	writeEscAttr(&b, t.Ref)
	b.WriteString(`"`)
	if !t.HeaderRow {
		b.WriteString(` headerRowCount="0"`)
	}
	if t.TotalsRow {
		b.WriteString(` totalsRowCount="1"`)
	}
	b.WriteString(`>`)
	if t.HeaderRow {
		b.WriteString(`<autoFilter ref="`)
		writeEscAttr(&b, t.Ref)
		b.WriteString(`"/>`)
	}
	b.WriteString(`<tableColumns count="` + strconv.Itoa(len(t.Columns)) + `">`)
	for i, name := range t.Columns {
		b.WriteString(`<tableColumn id="` + strconv.Itoa(i+1) + `" name="`)
		writeEscAttr(&b, name)
		b.WriteString(`"/>`)
	}
	b.WriteString(`</tableColumns>`)
	if t.StyleName != "" {
		b.WriteString(`<tableStyleInfo name="`)
		writeEscAttr(&b, t.StyleName)
		b.WriteString(`" showFirstColumn="0" showLastColumn="0" showRowStripes="1" showColumnStripes="0"/>`)
	}
	b.WriteString(`</table>`)
	return b.Bytes()
}

// ── escaping ──────────────────────────────────────────────────────────────────

func writeEscText(b *bytes.Buffer, s string) {
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

func writeEscAttr(b *bytes.Buffer, s string) {
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
		case '\n':
			b.WriteString("&#10;")
		default:
			b.WriteByte(s[i])
		}
	}
}
