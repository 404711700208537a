// Package numfmt carries the number-format knowledge shared by the style
// catalog and the serializers: the built-in format table of ECMA-376
// §18.8.30 and date/time detection for arbitrary format strings.
//
// Format-string tokenization is delegated to [github.com/xuri/nfp]; this
// package only classifies the resulting token stream.
package numfmt

import (
	"github.com/xuri/nfp"

	"github.com/TsubasaBE/go-xlsx/internal/dateformat"
)

// FirstCustomID is the first numFmtId available to user-defined formats.
// IDs 0–163 are reserved for the built-in table.
const FirstCustomID = 164

// General is the numFmtId of the default "General" format.
const General = 0

// BuiltIn maps built-in numFmtId values to their canonical format strings.
// IDs 27–36 and 50–58 are locale-specific (CJK/Thai) in ECMA-376; the
// entries here are the neutral Western fallbacks used when a file carries
// no overriding <numFmt> record.
var BuiltIn = map[int]string{
	0:  "General",
	1:  "0",
	2:  "0.00",
	3:  "#,##0",
	4:  "#,##0.00",
	5:  `($#,##0_);($#,##0)`,
	6:  `($#,##0_);[Red]($#,##0)`,
	7:  `($#,##0.00_);($#,##0.00)`,
	8:  `($#,##0.00_);[Red]($#,##0.00)`,
	9:  "0%",
	10: "0.00%",
	11: "0.00E+00",
	12: "# ?/?",
	13: "# ??/??",
	14: "mm-dd-yy",
	15: "d-mmm-yy",
	16: "d-mmm",
	17: "mmm-yy",
	18: "h:mm AM/PM",
	19: "h:mm:ss AM/PM",
	20: "hh:mm",
	21: "hh:mm:ss",
	22: "m/d/yy hh:mm",
	27: "MM-DD-YYYY",
	28: "D-MMM-YY",
	29: "D-MMM-YY",
	30: "M/D/YY",
	31: "YYYY-M-D",
	32: "H:MM",
	33: "H:MM:SS",
	34: "H:MM AM/PM",
	35: "H:MM:SS AM/PM",
	36: "MM-DD-YYYY",
	37: `(#,##0_);(#,##0)`,
	38: `(#,##0_);[Red](#,##0)`,
	39: `(#,##0.00_);(#,##0.00)`,
	40: `(#,##0.00_);[Red](#,##0.00)`,
	41: `_(* #,##0_);_(* (#,##0);_(* "-"_);_(@_)`,
	42: `_($* #,##0_);_($* (#,##0);_($* "-"_);_(@_)`,
	43: `_(* #,##0.00_);_(* (#,##0.00);_(* "-"??_);_(@_)`,
	44: `_($* #,##0.00_);_($* (#,##0.00);_($* "-"??_);_(@_)`,
	45: "mm:ss",
	46: "[h]:mm:ss",
	47: "mm:ss.0",
	48: "##0.0E+0",
	49: "@",
	50: "MM-DD-YYYY",
	51: "D-MMM-YY",
	52: "H:MM AM/PM",
	53: "H:MM:SS AM/PM",
	54: "D-MMM-YY",
	55: "H:MM AM/PM",
	56: "H:MM:SS AM/PM",
	57: "MM-DD-YYYY",
	58: "D-MMM-YY",
}

// BuiltInID returns the built-in numFmtId whose canonical string equals
// format, or -1 when format is not a built-in.
func BuiltInID(format string) int {
	for id, s := range builtinByString {
		if s == format {
			return id
		}
	}
	return -1
}

// builtinByString is the subset of BuiltIn suitable for reverse lookup:
// the locale-fallback duplicates (27–36, 50–58) are excluded so every
// string maps to a single ID.
var builtinByString = func() map[int]string {
	m := make(map[int]string, len(BuiltIn))
	for id, s := range BuiltIn {
		if (id >= 27 && id <= 36) || (id >= 50 && id <= 58) {
			continue
		}
		m[id] = s
	}
	return m
}()

// Resolve returns the effective format string for a (numFmtId, custom
// string) pair: the custom string when present, else the built-in string,
// else "General".
func Resolve(id int, custom string) string {
	if custom != "" {
		return custom
	}
	if s, ok := BuiltIn[id]; ok {
		return s
	}
	return "General"
}

// IsDateID reports whether id is a built-in date, datetime, or time
// numFmtId (14–22, 27–36, 45–47, 50–58 per ECMA-376 §18.8.30).
func IsDateID(id int) bool {
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 45 && id <= 47:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

// IsDate reports whether the (numFmtId, custom string) pair denotes a date
// or time format.  Built-in IDs are answered from the table; custom
// strings (id >= 164) are tokenized with nfp and classified by token type.
// Strings nfp cannot tokenize fall back to a raw character scan of the
// unquoted sections.
func IsDate(id int, custom string) bool {
	if id < FirstCustomID {
		return IsDateID(id)
	}
	if custom == "" {
		return false
	}
	parser := nfp.NumberFormatParser()
	sections := parser.Parse(custom)
	if len(sections) == 0 {
		return dateformat.Scan(custom)
	}
	for _, sec := range sections {
		for _, tok := range sec.Items {
			switch tok.TType {
			case nfp.TokenTypeDateTimes, nfp.TokenTypeElapsedDateTimes:
				return true
			}
		}
	}
	return false
}
