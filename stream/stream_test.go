package stream

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/TsubasaBE/go-xlsx/workbook"
	"github.com/TsubasaBE/go-xlsx/worksheet"
	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

func TestStreamWriteAndReload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Fast)
	sh, err := w.AddSheet("Data")
	if err != nil {
		t.Fatal(err)
	}
	if err := sh.AppendRow([]Cell{String("Name"), String("Value")}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2000; i++ {
		if err := sh.AppendRow([]Cell{String("Item"), Number(float64(i))}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	wb, err := workbook.LoadBytes(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	ws, err := wb.SheetByName("Data")
	if err != nil {
		t.Fatal(err)
	}
	cv, _ := ws.Get(1, 1)
	if cv.Value.Text() != "Name" {
		t.Errorf("A1 = %q", cv.Value.Text())
	}
	// Row 1501 carries the value written for i=1499.
	cv, _ = ws.Get(1501, 2)
	if cv.Value.Kind() != worksheet.KindNumber || cv.Value.Float() != 1499 {
		t.Errorf("(1501, 2) = %v", cv.Value)
	}
	if ws.RowCount() != 2001 {
		t.Errorf("RowCount = %d", ws.RowCount())
	}
}

func TestStreamMultipleSheets(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, None)
	first, _ := w.AddSheet("First")
	_ = first.AppendRow([]Cell{Number(1)})
	second, err := w.AddSheet("Second")
	if err != nil {
		t.Fatal(err)
	}
	_ = second.AppendRow([]Cell{Number(2)})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	wb, err := workbook.LoadBytes(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if names := wb.SheetNames(); len(names) != 2 || names[0] != "First" || names[1] != "Second" {
		t.Fatalf("SheetNames = %v", names)
	}
}

func TestStreamSheetFinalizedOnNewSheet(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, None)
	first, _ := w.AddSheet("First")
	if _, err := w.AddSheet("Second"); err != nil {
		t.Fatal(err)
	}
	err := first.AppendRow([]Cell{Number(1)})
	if !errors.Is(err, xlsxerr.InvalidFormat) {
		t.Errorf("append to finalized sheet error = %v, want InvalidFormat", err)
	}
}

func TestStreamRowOrder(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, None)
	sh, _ := w.AddSheet("S")
	if err := sh.AppendRowAt(5, []Cell{Number(5)}); err != nil {
		t.Fatal(err)
	}
	if err := sh.AppendRowAt(10, []Cell{Number(10)}); err != nil {
		t.Fatal(err)
	}
	if err := sh.AppendRowAt(10, []Cell{Number(10)}); !errors.Is(err, xlsxerr.InvalidFormat) {
		t.Errorf("repeated row error = %v, want InvalidFormat", err)
	}
	if err := sh.AppendRowAt(3, []Cell{Number(3)}); !errors.Is(err, xlsxerr.InvalidFormat) {
		t.Errorf("out-of-order row error = %v, want InvalidFormat", err)
	}
	if err := sh.AppendRowAt(0, nil); !errors.Is(err, xlsxerr.InvalidCoordinate) {
		t.Errorf("row 0 error = %v, want InvalidCoordinate", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	wb, err := workbook.LoadBytes(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	ws, _ := wb.Sheet(0)
	cv, _ := ws.Get(10, 1)
	if cv.Value.Float() != 10 {
		t.Errorf("(10, 1) = %v", cv.Value)
	}
}

func TestStreamCloseWithoutSheets(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, None)
	if err := w.Close(); !errors.Is(err, xlsxerr.NoWorksheets) {
		t.Errorf("Close with no sheets error = %v, want NoWorksheets", err)
	}
}

func TestStreamDuplicateSheet(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, None)
	_, _ = w.AddSheet("S")
	if _, err := w.AddSheet("S"); !errors.Is(err, xlsxerr.WorksheetAlreadyExists) {
		t.Errorf("duplicate sheet error = %v, want WorksheetAlreadyExists", err)
	}
}

func TestStreamInlineString(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, None)
	sh, _ := w.AddSheet("S")
	_ = sh.AppendRow([]Cell{InlineString("inline only"), Formula("A1&\"x\""), Bool(true), Blank(), Number(7)})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	raw := buf.String()
	if strings.Contains(raw, "sharedStrings.xml") {
		t.Error("inline-only workbook still carries a shared-string part")
	}

	wb, err := workbook.LoadBytes(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	ws, _ := wb.Sheet(0)
	cv, _ := ws.Get(1, 1)
	if cv.Value.Text() != "inline only" {
		t.Errorf("A1 = %q", cv.Value.Text())
	}
	cv, _ = ws.Get(1, 2)
	if cv.Formula != `A1&"x"` {
		t.Errorf("B1 formula = %q", cv.Formula)
	}
	cv, _ = ws.Get(1, 3)
	if !cv.Value.Bool() {
		t.Errorf("C1 = %v", cv.Value)
	}
	if _, err := ws.Get(1, 4); err != nil {
		t.Fatal(err)
	}
	cv, _ = ws.Get(1, 5)
	if cv.Value.Float() != 7 {
		t.Errorf("E1 = %v", cv.Value)
	}
	// The blank cell produced no record.
	cv, _ = ws.Get(1, 4)
	if !cv.IsEmpty() {
		t.Errorf("D1 = %+v, want empty", cv)
	}
}

func TestStreamSharedStringsDedup(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, None)
	sh, _ := w.AddSheet("S")
	for i := 0; i < 10; i++ {
		_ = sh.AppendRow([]Cell{String("repeated")})
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	raw := buf.String()
	if got := strings.Count(raw, ">repeated<"); got != 1 {
		t.Errorf("shared string stored %d times, want 1", got)
	}
}
