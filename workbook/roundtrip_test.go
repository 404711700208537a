package workbook

// Round-trip and loader tests.  All fixtures are built in memory; no
// external .xlsx file is required.

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/TsubasaBE/go-xlsx/styles"
	"github.com/TsubasaBE/go-xlsx/worksheet"
	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

// buildArchive zips the given part name → content map.
func buildArchive(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// readPart extracts one part from a produced archive.
func readPart(t *testing.T, archive []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				t.Fatal(err)
			}
			return string(data)
		}
	}
	t.Fatalf("part %q not in archive", name)
	return ""
}

const minimalWorkbookXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="S" sheetId="1" r:id="rId1"/></sheets>
</workbook>`

const minimalWorkbookRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
</Relationships>`

func singleSheetArchive(t *testing.T, sheetXML string) []byte {
	return buildArchive(t, map[string]string{
		"xl/workbook.xml":            minimalWorkbookXML,
		"xl/_rels/workbook.xml.rels": minimalWorkbookRels,
		"xl/worksheets/sheet1.xml":   sheetXML,
	})
}

// ── create → save → reload scenarios ──────────────────────────────────────────

func TestCreateSaveReload(t *testing.T) {
	wb := New()
	ws, err := wb.AddSheet("S")
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.SetRef("A1", worksheet.String("Hello")); err != nil {
		t.Fatal(err)
	}
	if err := ws.SetValue(2, 2, worksheet.Number(42.5)); err != nil {
		t.Fatal(err)
	}
	if err := ws.SetValue(3, 3, worksheet.Bool(true)); err != nil {
		t.Fatal(err)
	}

	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatal("output is not a ZIP archive")
	}

	wb2, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if names := wb2.SheetNames(); len(names) != 1 || names[0] != "S" {
		t.Fatalf("SheetNames = %v", names)
	}
	ws2, _ := wb2.Sheet(0)

	cv, _ := ws2.Get(1, 1)
	if cv.Value.Kind() != worksheet.KindString || cv.Value.Text() != "Hello" {
		t.Errorf("A1 = %v %q", cv.Value.Kind(), cv.Value.Text())
	}
	cv, _ = ws2.Get(2, 2)
	if cv.Value.Kind() != worksheet.KindNumber || cv.Value.Float() != 42.5 {
		t.Errorf("B2 = %v", cv.Value)
	}
	cv, _ = ws2.Get(3, 3)
	if cv.Value.Kind() != worksheet.KindBool || !cv.Value.Bool() {
		t.Errorf("C3 = %v", cv.Value)
	}
	if ws2.CellCount() != 3 {
		t.Errorf("CellCount = %d, want 3", ws2.CellCount())
	}
}

func TestMergeAndStyleRoundTrip(t *testing.T) {
	wb := New()
	ws, _ := wb.AddSheet("S")
	if err := ws.Merge("B2:D4"); err != nil {
		t.Fatal(err)
	}
	bold := wb.Styles().Intern(styles.Style{Font: &styles.Font{Name: "Calibri", Size: 11, Bold: true}})
	_ = ws.SetRef("B2", worksheet.String("Title"))
	_ = ws.SetStyle(2, 2, bold)

	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	wb2, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	ws2, _ := wb2.Sheet(0)

	merges := ws2.Merges()
	if len(merges) != 1 || merges[0].Ref() != "B2:D4" {
		t.Fatalf("merges = %v", merges)
	}
	cv, _ := ws2.Get(2, 2)
	if cv.Value.Text() != "Title" {
		t.Errorf("B2 = %q", cv.Value.Text())
	}
	font := wb2.Styles().StyleOf(cv.Style).Font
	if font == nil || !font.Bold {
		t.Errorf("B2 font = %+v, want bold", font)
	}
	// No other cells materialized inside the merge.
	if ws2.CellCount() != 1 {
		t.Errorf("CellCount = %d, want 1", ws2.CellCount())
	}
}

func TestDefinedNameRoundTrip(t *testing.T) {
	wb := New()
	_, _ = wb.AddSheet("Alpha")
	beta, _ := wb.AddSheet("Beta")
	_ = beta.SetRef("B2", worksheet.Number(99))
	if err := wb.SetDefinedName("X", "Beta!$B$2", -1); err != nil {
		t.Fatal(err)
	}

	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	wb2, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	dn, ok := wb2.DefinedName("X", -1)
	if !ok || dn.RefersTo != "Beta!$B$2" {
		t.Fatalf("DefinedName(X) = (%+v, %v)", dn, ok)
	}
	sheet, rangeRef, ok := dn.Resolve()
	if !ok || sheet != "Beta" || rangeRef != "$B$2" {
		t.Errorf("Resolve = (%q, %q, %v)", sheet, rangeRef, ok)
	}
}

// ── shared-string census ──────────────────────────────────────────────────────

func TestSharedStringCensus(t *testing.T) {
	wb := New()
	ws, _ := wb.AddSheet("S")
	_ = ws.SetValue(1, 1, worksheet.String("dup"))
	_ = ws.SetValue(2, 1, worksheet.String("dup"))
	_ = ws.SetValue(3, 1, worksheet.String("solo"))

	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}

	sst := readPart(t, data, "xl/sharedStrings.xml")
	if !strings.Contains(sst, `uniqueCount="1"`) {
		t.Errorf("sharedStrings uniqueCount: %s", sst)
	}
	if strings.Count(sst, "<si>") != 1 || !strings.Contains(sst, ">dup<") {
		t.Errorf("sharedStrings entries: %s", sst)
	}

	sheet := readPart(t, data, "xl/worksheets/sheet1.xml")
	if !strings.Contains(sheet, `t="inlineStr"`) || !strings.Contains(sheet, ">solo<") {
		t.Errorf("singleton not inlined: %s", sheet)
	}
	if strings.Count(sheet, `t="s"`) != 2 {
		t.Errorf("pooled references: %s", sheet)
	}

	wb2, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	ws2, _ := wb2.Sheet(0)
	for _, rc := range []struct {
		row  uint32
		want string
	}{{1, "dup"}, {2, "dup"}, {3, "solo"}} {
		cv, _ := ws2.Get(rc.row, 1)
		if cv.Value.Text() != rc.want {
			t.Errorf("row %d = %q, want %q", rc.row, cv.Value.Text(), rc.want)
		}
	}
}

// ── shared formulas ───────────────────────────────────────────────────────────

const sharedFormulaSheet = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<sheetData>
<row r="2"><c r="C2"><f t="shared" ref="C2:C5" si="0">A2+B2</f><v>0</v></c></row>
<row r="3"><c r="C3"><f t="shared" si="0"/></c></row>
<row r="4"><c r="C4"><f t="shared" si="0"/></c></row>
<row r="5"><c r="C5"><f t="shared" si="0"/></c></row>
</sheetData>
</worksheet>`

func TestSharedFormulaTranslation(t *testing.T) {
	wb, err := LoadBytes(singleSheetArchive(t, sharedFormulaSheet))
	if err != nil {
		t.Fatal(err)
	}
	ws, _ := wb.Sheet(0)
	want := map[uint32]string{2: "A2+B2", 3: "A3+B3", 4: "A4+B4", 5: "A5+B5"}
	for row, formula := range want {
		cv, _ := ws.Get(row, 3)
		if cv.Formula != formula {
			t.Errorf("C%d formula = %q, want %q", row, cv.Formula, formula)
		}
	}
}

func TestSharedFormulaDerivativeBeforeMaster(t *testing.T) {
	sheet := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<sheetData>
<row r="2"><c r="C2"><f t="shared" si="7"/></c></row>
</sheetData>
</worksheet>`
	_, err := LoadBytes(singleSheetArchive(t, sheet))
	if !errors.Is(err, xlsxerr.InvalidFormat) {
		t.Errorf("derivative before master error = %v, want InvalidFormat", err)
	}
}

// ── loader failure modes ──────────────────────────────────────────────────────

func TestCorruptArchive(t *testing.T) {
	_, err := LoadBytes([]byte("PK\x03\x04 this is not a zip central directory"))
	if !errors.Is(err, xlsxerr.Container) {
		t.Errorf("corrupt archive error = %v, want Container", err)
	}
}

func TestTruncatedArchive(t *testing.T) {
	wb := New()
	_, _ = wb.AddSheet("S")
	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	_, err = LoadBytes(data[:len(data)-40])
	if !errors.Is(err, xlsxerr.Container) {
		t.Errorf("truncated archive error = %v, want Container", err)
	}
}

func TestMalformedCellCoordinate(t *testing.T) {
	sheet := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<sheetData>
<row r="1"><c r="ZZZ0"><v>1</v></c></row>
</sheetData>
</worksheet>`
	_, err := LoadBytes(singleSheetArchive(t, sheet))
	if !errors.Is(err, xlsxerr.ParseError) {
		t.Fatalf("bad coordinate error = %v, want ParseError", err)
	}
	var xe *xlsxerr.Error
	if !errors.As(err, &xe) {
		t.Fatal("error is not *xlsxerr.Error")
	}
	if xe.Part != "xl/worksheets/sheet1.xml" {
		t.Errorf("error part = %q", xe.Part)
	}
	if xe.Offset == 0 {
		t.Error("error carries no byte offset")
	}
}

func TestDanglingSharedStringIndex(t *testing.T) {
	sheet := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<sheetData>
<row r="1"><c r="A1" t="s"><v>99</v></c></row>
</sheetData>
</worksheet>`
	_, err := LoadBytes(singleSheetArchive(t, sheet))
	if !errors.Is(err, xlsxerr.ParseError) {
		t.Errorf("dangling index error = %v, want ParseError", err)
	}
}

func TestDanglingStyleIndex(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"xl/workbook.xml":            minimalWorkbookXML,
		"xl/_rels/workbook.xml.rels": minimalWorkbookRels,
		"xl/styles.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<fonts count="1"><font><sz val="11"/><name val="Calibri"/></font></fonts>
<fills count="2"><fill><patternFill patternType="none"/></fill><fill><patternFill patternType="gray125"/></fill></fills>
<borders count="1"><border><left/><right/><top/><bottom/><diagonal/></border></borders>
<cellXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0"/></cellXfs>
</styleSheet>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<sheetData>
<row r="1"><c r="A1" s="9"><v>1</v></c></row>
</sheetData>
</worksheet>`,
	})
	_, err := LoadBytes(archive)
	if !errors.Is(err, xlsxerr.InvalidFormat) {
		t.Errorf("dangling style error = %v, want InvalidFormat", err)
	}
}

func TestDuplicateSheetIDs(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"xl/workbook.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets>
<sheet name="A" sheetId="1" r:id="rId1"/>
<sheet name="B" sheetId="1" r:id="rId2"/>
</sheets>
</workbook>`,
	})
	_, err := LoadBytes(archive)
	if !errors.Is(err, xlsxerr.InvalidFormat) {
		t.Errorf("duplicate sheet id error = %v, want InvalidFormat", err)
	}
}

func TestMissingWorkbookPart(t *testing.T) {
	archive := buildArchive(t, map[string]string{"hello.txt": "not a workbook"})
	_, err := LoadBytes(archive)
	if !errors.Is(err, xlsxerr.InvalidFormat) {
		t.Errorf("missing workbook part error = %v, want InvalidFormat", err)
	}
}

// ── save boundaries ───────────────────────────────────────────────────────────

func TestSaveEmptyWorkbook(t *testing.T) {
	wb := New()
	if _, err := wb.SaveBytes(); !errors.Is(err, xlsxerr.NoWorksheets) {
		t.Errorf("empty save error = %v, want NoWorksheets", err)
	}
}

func TestZeroCellSheetDimension(t *testing.T) {
	wb := New()
	_, _ = wb.AddSheet("Empty")
	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	sheet := readPart(t, data, "xl/worksheets/sheet1.xml")
	if !strings.Contains(sheet, `<dimension ref="A1"/>`) {
		t.Errorf("empty sheet dimension: %s", sheet)
	}
	if _, err := LoadBytes(data); err != nil {
		t.Errorf("empty sheet archive does not reload: %v", err)
	}
}

// ── auxiliary tables ──────────────────────────────────────────────────────────

func TestAuxiliaryRoundTrip(t *testing.T) {
	wb := New()
	wb.Date1904 = true
	ws, _ := wb.AddSheet("Aux")
	_ = wb.SetSheetVisibility(0, SheetHidden)
	// A hidden sheet cannot be the only visible one; add another.
	_, _ = wb.AddSheet("Visible")

	_ = ws.SetValue(1, 1, worksheet.Number(1))
	_ = ws.SetColWidth(1, 2, 17.5)
	_ = ws.SetRowHeight(1, 31)
	_ = ws.SetComment(1, 1, "a remark")
	_ = ws.SetHyperlink(1, 1, worksheet.Hyperlink{Target: "https://example.com/x"})
	_ = ws.SetHyperlink(2, 1, worksheet.Hyperlink{Location: "Visible!A1"})
	ws.AutoFilter = "A1:B9"
	ws.TabColor = "FF00FF00"
	ws.SheetView = &worksheet.View{FrozenRows: 1, FrozenCols: 2}
	ws.Protection = &worksheet.Protection{Sheet: true, SelectLockedCells: true}
	ws.Validations = append(ws.Validations, worksheet.DataValidation{
		Ref: "A1:A9", Type: "whole", Operator: "between",
		Formula1: "1", Formula2: "10", AllowBlank: true, ShowError: true,
	})
	ws.CondFormats = append(ws.CondFormats, worksheet.ConditionalFormat{
		Ref: "A1:A9",
		Rules: []worksheet.CFRule{
			{Type: "cellIs", Operator: "greaterThan", Priority: 1, Formulas: []string{"5"}},
		},
	})
	ws.Margins = &worksheet.PageMargins{Left: 1, Right: 1, Top: 1, Bottom: 1, Header: 0.5, Footer: 0.5}
	ws.Setup = &worksheet.PageSetup{Orientation: "landscape", Scale: 90}
	ws.HeaderFooter = &worksheet.HeaderFooter{OddHeader: "&CTitle"}

	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	wb2, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if !wb2.Date1904 {
		t.Error("Date1904 lost")
	}
	if state, _ := wb2.SheetVisibility(0); state != SheetHidden {
		t.Errorf("visibility = %q", state)
	}
	ws2, _ := wb2.Sheet(0)

	if dims := ws2.ColDims(); len(dims) != 1 || dims[0].Width != 17.5 || dims[0].Min != 1 || dims[0].Max != 2 {
		t.Errorf("col dims = %+v", dims)
	}
	if d, ok := ws2.RowDim(1); !ok || d.Height != 31 {
		t.Errorf("row dim = (%+v, %v)", d, ok)
	}
	if s, ok := ws2.Comment(1, 1); !ok || s != "a remark" {
		t.Errorf("comment = (%q, %v)", s, ok)
	}
	if h, ok := ws2.Hyperlink(1, 1); !ok || h.Target != "https://example.com/x" {
		t.Errorf("external hyperlink = (%+v, %v)", h, ok)
	}
	if h, ok := ws2.Hyperlink(2, 1); !ok || h.Location != "Visible!A1" {
		t.Errorf("location hyperlink = (%+v, %v)", h, ok)
	}
	if ws2.AutoFilter != "A1:B9" {
		t.Errorf("autofilter = %q", ws2.AutoFilter)
	}
	if ws2.TabColor != "FF00FF00" {
		t.Errorf("tab color = %q", ws2.TabColor)
	}
	if v := ws2.SheetView; v == nil || v.FrozenRows != 1 || v.FrozenCols != 2 {
		t.Errorf("view = %+v", v)
	}
	if p := ws2.Protection; p == nil || !p.Sheet || !p.SelectLockedCells {
		t.Errorf("protection = %+v", p)
	}
	if len(ws2.Validations) != 1 || ws2.Validations[0].Formula1 != "1" || ws2.Validations[0].Formula2 != "10" {
		t.Errorf("validations = %+v", ws2.Validations)
	}
	if len(ws2.CondFormats) != 1 || len(ws2.CondFormats[0].Rules) != 1 ||
		len(ws2.CondFormats[0].Rules[0].Formulas) != 1 || ws2.CondFormats[0].Rules[0].Formulas[0] != "5" {
		t.Errorf("conditional formats = %+v", ws2.CondFormats)
	}
	if m := ws2.Margins; m == nil || m.Left != 1 || m.Header != 0.5 {
		t.Errorf("margins = %+v", m)
	}
	if s := ws2.Setup; s == nil || s.Orientation != "landscape" || s.Scale != 90 {
		t.Errorf("setup = %+v", s)
	}
	if hf := ws2.HeaderFooter; hf == nil || hf.OddHeader != "&CTitle" {
		t.Errorf("header/footer = %+v", hf)
	}
}

func TestFormulaAndDateRoundTrip(t *testing.T) {
	wb := New()
	ws, _ := wb.AddSheet("S")
	_ = ws.SetFormula(1, 1, "B1*2", worksheet.Number(10))
	_ = ws.SetFormula(2, 1, `CONCAT("a","b")`, worksheet.String("ab"))
	_ = ws.SetValue(3, 1, worksheet.Date("2023-06-15"))

	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	wb2, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	ws2, _ := wb2.Sheet(0)

	cv, _ := ws2.Get(1, 1)
	if cv.Formula != "B1*2" || cv.Value.Float() != 10 {
		t.Errorf("A1 = %+v", cv)
	}
	cv, _ = ws2.Get(2, 1)
	if cv.Formula != `CONCAT("a","b")` || cv.Value.Text() != "ab" {
		t.Errorf("A2 = %+v", cv)
	}
	cv, _ = ws2.Get(3, 1)
	if cv.Value.Kind() != worksheet.KindDate || cv.Value.Text() != "2023-06-15" {
		t.Errorf("A3 = %+v", cv)
	}
}

func TestErrorCellRoundTrip(t *testing.T) {
	sheet := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<sheetData>
<row r="1"><c r="A1" t="e"><v>#DIV/0!</v></c></row>
</sheetData>
</worksheet>`
	wb, err := LoadBytes(singleSheetArchive(t, sheet))
	if err != nil {
		t.Fatal(err)
	}
	ws, _ := wb.Sheet(0)
	cv, _ := ws.Get(1, 1)
	if cv.Value.Text() != "#DIV/0!" || cv.TypeHint != "e" {
		t.Fatalf("A1 = %+v", cv)
	}

	// Re-save keeps the t="e" representation.
	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	out := readPart(t, data, "xl/worksheets/sheet1.xml")
	if !strings.Contains(out, `t="e"`) || !strings.Contains(out, "#DIV/0!") {
		t.Errorf("error cell representation lost: %s", out)
	}
}

// ── rich text preservation ────────────────────────────────────────────────────

func TestRichTextFlattenAndPreserve(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"xl/workbook.xml":            minimalWorkbookXML,
		"xl/_rels/workbook.xml.rels": minimalWorkbookRels,
		"xl/sharedStrings.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="2" uniqueCount="1">
<si><r><rPr><b/></rPr><t>bold</t></r><r><t> plain</t></r></si>
</sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>0</v></c></row>
</sheetData>
</worksheet>`,
	})
	wb, err := LoadBytes(archive)
	if err != nil {
		t.Fatal(err)
	}
	ws, _ := wb.Sheet(0)
	cv, _ := ws.Get(1, 1)
	if cv.Value.Text() != "bold plain" {
		t.Fatalf("flattened text = %q", cv.Value.Text())
	}

	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	sst := readPart(t, data, "xl/sharedStrings.xml")
	if !strings.Contains(sst, "<r><rPr><b/></rPr><t>bold</t></r>") {
		t.Errorf("rich-text markup not preserved: %s", sst)
	}
}

// ── model equality over repeated round trips ──────────────────────────────────

func snapshotCells(ws *worksheet.Worksheet) []worksheet.CellView {
	var out []worksheet.CellView
	ws.Cells()(func(cv worksheet.CellView) bool {
		out = append(out, cv)
		return true
	})
	return out
}

func TestLoadSaveLoadModelEquality(t *testing.T) {
	wb := New()
	ws, _ := wb.AddSheet("M")
	_ = ws.SetValue(1, 1, worksheet.String("twice"))
	_ = ws.SetValue(1, 2, worksheet.String("twice"))
	_ = ws.SetValue(2, 1, worksheet.Number(3.25))
	_ = ws.SetValue(2, 2, worksheet.Bool(false))
	_ = ws.SetValue(3, 1, worksheet.Date("2020-02-29"))
	_ = ws.SetFormula(4, 1, "A2+1", worksheet.Number(4.25))
	_ = ws.Merge("A5:B6")
	_ = wb.SetDefinedName("N", "M!$A$1", -1)

	first, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	wb2, err := LoadBytes(first)
	if err != nil {
		t.Fatal(err)
	}
	second, err := wb2.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	wb3, err := LoadBytes(second)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := wb3.SheetNames(), wb2.SheetNames(); len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("sheet names diverged: %v vs %v", got, want)
	}
	ws2, _ := wb2.Sheet(0)
	ws3, _ := wb3.Sheet(0)
	cells2 := snapshotCells(ws2)
	cells3 := snapshotCells(ws3)
	if len(cells2) != len(cells3) {
		t.Fatalf("cell counts diverged: %d vs %d", len(cells2), len(cells3))
	}
	for i := range cells2 {
		if cells2[i] != cells3[i] {
			t.Errorf("cell %d diverged: %+v vs %+v", i, cells2[i], cells3[i])
		}
	}
	if len(ws3.Merges()) != 1 || ws3.Merges()[0].Ref() != "A5:B6" {
		t.Errorf("merges = %v", ws3.Merges())
	}
	dn2, _ := wb2.DefinedName("N", -1)
	dn3, ok := wb3.DefinedName("N", -1)
	if !ok || dn2 != dn3 {
		t.Errorf("defined names diverged: %+v vs %+v", dn2, dn3)
	}
}

// ── chunked sheetData emission ────────────────────────────────────────────────

func TestChunkedEmissionMatchesSerial(t *testing.T) {
	build := func() *Workbook {
		wb := New()
		ws, _ := wb.AddSheet("Big")
		for row := uint32(1); row <= 2600; row++ {
			_ = ws.SetValue(row, 1, worksheet.Number(float64(row)))
			_ = ws.SetValue(row, 2, worksheet.String("label"))
			_ = ws.SetValue(row, 3, worksheet.Bool(row%2 == 0))
		}
		return wb
	}

	parallel := build()
	parallel.ParallelRowThreshold = 100
	parallel.ParallelChunkRows = 500
	parData, err := parallel.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}

	serial := build()
	serial.ParallelRowThreshold = 1 << 30
	serData, err := serial.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}

	parSheet := readPart(t, parData, "xl/worksheets/sheet1.xml")
	serSheet := readPart(t, serData, "xl/worksheets/sheet1.xml")
	if parSheet != serSheet {
		t.Fatal("chunked emission differs from serial emission")
	}

	wb2, err := LoadBytes(parData)
	if err != nil {
		t.Fatal(err)
	}
	ws2, _ := wb2.Sheet(0)
	cv, _ := ws2.Get(1999, 1)
	if cv.Value.Float() != 1999 {
		t.Errorf("spot check (1999, 1) = %v", cv.Value)
	}
	if ws2.CellCount() != 2600*3 {
		t.Errorf("CellCount = %d", ws2.CellCount())
	}
}

// ── multi-sheet parallel load ─────────────────────────────────────────────────

func TestParallelMultiSheetLoad(t *testing.T) {
	wb := New()
	for _, name := range []string{"One", "Two", "Three", "Four"} {
		ws, _ := wb.AddSheet(name)
		for row := uint32(1); row <= 50; row++ {
			_ = ws.SetValue(row, 1, worksheet.String(name))
			_ = ws.SetValue(row, 2, worksheet.Number(float64(row)))
		}
	}
	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	wb2, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range []string{"One", "Two", "Three", "Four"} {
		ws2, err := wb2.Sheet(i)
		if err != nil {
			t.Fatal(err)
		}
		if ws2.Name() != name {
			t.Errorf("sheet %d = %q, want %q", i, ws2.Name(), name)
		}
		cv, _ := ws2.Get(25, 1)
		if cv.Value.Text() != name {
			t.Errorf("sheet %q cell = %q", name, cv.Value.Text())
		}
	}
	// A string interned during the parallel sheet decode is in the shared pool.
	p := wb2.Pool()
	if h1, ok := p.Lookup("One"); !ok || p.Resolve(h1) != "One" {
		t.Error("pool lost a shared entry")
	}
}

// ── table parts ───────────────────────────────────────────────────────────────

func TestTableRoundTrip(t *testing.T) {
	wb := New()
	ws, _ := wb.AddSheet("T")
	_ = ws.SetValue(1, 1, worksheet.String("Name"))
	_ = ws.SetValue(1, 2, worksheet.String("Total"))
	_ = ws.SetValue(2, 1, worksheet.String("a"))
	_ = ws.SetValue(2, 2, worksheet.Number(1))
	ws.Tables = append(ws.Tables, worksheet.Table{
		ID: 1, Name: "Table1", DisplayName: "Table1", Ref: "A1:B2",
		Columns: []string{"Name", "Total"}, HeaderRow: true,
	})

	data, err := wb.SaveBytes()
	if err != nil {
		t.Fatal(err)
	}
	wb2, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	ws2, _ := wb2.Sheet(0)
	if len(ws2.Tables) != 1 {
		t.Fatalf("tables = %+v", ws2.Tables)
	}
	tbl := ws2.Tables[0]
	if tbl.Name != "Table1" || tbl.Ref != "A1:B2" || len(tbl.Columns) != 2 || !tbl.HeaderRow {
		t.Errorf("table = %+v", tbl)
	}
}
