// Package xlsx reads, mutates, and writes OOXML SpreadsheetML (.xlsx)
// workbooks.  No cgo is required.
//
// # Quick start
//
//	wb, err := xlsx.Open("Book1.xlsx")
//	if err != nil { ... }
//
//	fmt.Println(wb.SheetNames()) // [Sheet1 Sheet2]
//
//	ws, err := wb.SheetByName("Sheet1")
//	if err != nil { ... }
//
//	for cv := range ws.Cells() {
//	    fmt.Printf("(%d,%d) = %v\n", cv.Row, cv.Col, cv.Value)
//	}
//
// # Building workbooks
//
// [New] returns an empty workbook.  Sheets are added by name, cells are
// addressed by 1-based (row, col) pairs or A1 references, and
// [workbook.Workbook.Save] writes the archive atomically:
//
//	wb := xlsx.New()
//	ws, _ := wb.AddSheet("Data")
//	_ = ws.SetRef("A1", worksheet.String("Hello"))
//	_ = ws.SetValue(2, 1, worksheet.Number(42.5))
//	_ = wb.Save("out.xlsx")
//
// # Bulk output
//
// For outputs too large to hold in memory, the stream package provides a
// constant-memory append writer that serializes rows into the archive as
// they are pushed.
//
// # Dates
//
// Cells written with a date style store serial numbers.  [SerialDate]
// converts a serial to a [time.Time]; pass wb.Date1904 to [SerialDateEx]
// when the workbook uses the 1904 date system.
package xlsx

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/TsubasaBE/go-xlsx/workbook"
)

// Version is the current version of the go-xlsx library.
const Version = "0.9.0"

// New returns an empty in-memory workbook.
func New() *workbook.Workbook {
	return workbook.New()
}

// Open loads the named .xlsx file into memory.
func Open(name string) (*workbook.Workbook, error) {
	return workbook.Load(name)
}

// OpenBytes loads an .xlsx archive held in memory.
func OpenBytes(data []byte) (*workbook.Workbook, error) {
	return workbook.LoadBytes(data)
}

// OpenReader loads an .xlsx workbook from an arbitrary [io.ReaderAt].
// size must equal the total byte length of the data.
func OpenReader(r io.ReaderAt, size int64) (*workbook.Workbook, error) {
	return workbook.LoadReader(r, size)
}

// SerialDate converts an Excel date serial number to a [time.Time] value
// in the default 1900 date system.
//
// Excel represents dates as the number of days since 1900-01-00, with the
// fractional part representing the time of day.  Lotus 1-2-3 incorrectly
// treated 1900 as a leap year, so the format perpetuates the bug: serial
// 60 is treated as 1900-02-29 (which never existed).  The three resulting
// branches:
//
//   - serial == 0  → midnight on 1900-01-01
//   - serial >= 61 → subtract one day to compensate for the phantom leap day
//   - 1 ≤ serial ≤ 60 → no compensation (serial 60 yields 1900-03-01)
func SerialDate(serial float64) (time.Time, error) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) {
		return time.Time{}, fmt.Errorf("xlsx: SerialDate: invalid value %v", serial)
	}
	if serial < 0 {
		return time.Time{}, fmt.Errorf("xlsx: SerialDate: negative serial %v not supported", serial)
	}
	// Excel dates only reach serial 2,958,465 (9999-12-31).  Values above
	// that would overflow time.Duration arithmetic (int64 nanoseconds).
	const maxSerial = 2_958_466
	if serial > maxSerial {
		return time.Time{}, fmt.Errorf("xlsx: SerialDate: serial %v exceeds maximum supported value %d", serial, maxSerial)
	}

	fracSec, dayRollover := serialFracSec(serial)

	base := time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	intPart := int(serial) + dayRollover
	var t time.Time
	switch {
	case intPart == 0:
		t = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(fracSec) * time.Second)
	case intPart >= 61:
		t = base.Add(time.Duration(intPart-1)*24*time.Hour + time.Duration(fracSec)*time.Second)
	default:
		t = base.Add(time.Duration(intPart)*24*time.Hour + time.Duration(fracSec)*time.Second)
	}
	return t, nil
}

// SerialDateEx converts an Excel date serial number to a [time.Time],
// respecting the workbook's date system.  Pass wb.Date1904 as date1904.
//
// In the 1904 system serial 0 is 1904-01-01 and the phantom leap-day
// correction does not apply.
func SerialDateEx(serial float64, date1904 bool) (time.Time, error) {
	if !date1904 {
		return SerialDate(serial)
	}
	if math.IsNaN(serial) || math.IsInf(serial, 0) {
		return time.Time{}, fmt.Errorf("xlsx: SerialDateEx: invalid value %v", serial)
	}
	if serial < 0 {
		return time.Time{}, fmt.Errorf("xlsx: SerialDateEx: negative serial %v not supported", serial)
	}
	// The 1904 serials are offset by 1462 days from the 1900 serials, so
	// the maximum shrinks by the same amount.
	const maxSerial = 2_958_466 - 1462
	if serial > maxSerial {
		return time.Time{}, fmt.Errorf("xlsx: SerialDateEx: serial %v exceeds maximum supported value %d", serial, maxSerial)
	}

	fracSec, dayRollover := serialFracSec(serial)

	base := time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	intPart := int(serial) + dayRollover
	return base.Add(time.Duration(intPart)*24*time.Hour + time.Duration(fracSec)*time.Second), nil
}

// serialFracSec converts the fractional-day part of a serial to a whole
// second count within the day (0–86399) plus a day-rollover flag.  A small
// epsilon absorbs floating-point drift before rounding to the nearest
// second; rounding that lands exactly on midnight rolls over to the next
// day instead of clamping.
func serialFracSec(serial float64) (fracSec int64, dayRollover int) {
	const roundEpsilon = 1e-9
	fracDay := (serial - math.Trunc(serial)) + roundEpsilon
	const nanosInADay = float64(24 * 60 * 60 * 1e9)
	durNanos := time.Duration(fracDay * nanosInADay)
	ns := int(durNanos % time.Second)
	secs := int64(durNanos / time.Second)
	if ns > 500_000_000 {
		secs++
	}
	if secs < 0 {
		secs = 0
	}
	rollover := int(secs / 86400)
	secs = secs % 86400
	return secs, rollover
}

// TimeToSerial converts a UTC time to an Excel date serial in the 1900
// date system, the inverse of [SerialDate] for dates at or after
// 1900-03-01.
func TimeToSerial(t time.Time) float64 {
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	d := t.Sub(base)
	return d.Hours() / 24
}
