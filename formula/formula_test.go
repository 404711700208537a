package formula

import (
	"errors"
	"testing"

	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

// ── Translate ─────────────────────────────────────────────────────────────────

func TestTranslate(t *testing.T) {
	tests := []struct {
		name       string
		master     string
		dRow, dCol int64
		want       string
	}{
		{"row shift", "A2+B2", 1, 0, "A3+B3"},
		{"multi-row shift", "A2+B2", 3, 0, "A5+B5"},
		{"column shift", "A2+B2", 0, 2, "C2+D2"},
		{"both axes", "A1*2", 2, 2, "C3*2"},
		{"absolute row pinned", "A$1+B2", 5, 0, "A$1+B7"},
		{"absolute column pinned", "$A1+B2", 0, 3, "$A1+E2"},
		{"fully absolute pinned", "$A$1", 9, 9, "$A$1"},
		{"no offset is identity", "SUM(A1:B2)", 0, 0, "SUM(A1:B2)"},
		{"function name with digits", "LOG10(A1)", 1, 0, "LOG10(A2)"},
		{"range operands shift", "SUM(A1:B2)", 1, 1, "SUM(B2:C3)"},
		{"string literal untouched", `IF(A1>0,"A1 ok","bad")`, 1, 0, `IF(A2>0,"A1 ok","bad")`},
		{"quoted sheet name untouched", "'A1 data'!B2+1", 1, 0, "'A1 data'!B3+1"},
		{"sheet qualifier kept", "Sheet2!B2*2", 2, 0, "Sheet2!B4*2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Translate(tc.master, tc.dRow, tc.dCol)
			if err != nil {
				t.Fatalf("Translate(%q, %d, %d): %v", tc.master, tc.dRow, tc.dCol, err)
			}
			if got != tc.want {
				t.Errorf("Translate(%q, %d, %d) = %q, want %q", tc.master, tc.dRow, tc.dCol, got, tc.want)
			}
		})
	}
}

func TestTranslateLowercaseCanonicalizes(t *testing.T) {
	// Shifted references re-render in canonical uppercase.
	got, err := Translate("a1+1", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != "A2+1" {
		t.Errorf("Translate(a1+1, 1, 0) = %q, want A2+1", got)
	}
}

func TestTranslateOutOfGrid(t *testing.T) {
	for _, tc := range []struct {
		master     string
		dRow, dCol int64
	}{
		{"A1", -1, 0},
		{"A1048576", 1, 0},
		{"XFD1", 0, 1},
	} {
		_, err := Translate(tc.master, tc.dRow, tc.dCol)
		if err == nil {
			t.Errorf("Translate(%q, %d, %d): expected error", tc.master, tc.dRow, tc.dCol)
			continue
		}
		if !errors.Is(err, xlsxerr.InvalidFormat) {
			t.Errorf("Translate(%q): error = %v, want InvalidFormat", tc.master, err)
		}
	}
}

// ── SplitRef ──────────────────────────────────────────────────────────────────

func TestSplitRef(t *testing.T) {
	tests := []struct {
		in       string
		sheet    string
		rangeRef string
		ok       bool
	}{
		{"Beta!$B$2", "Beta", "$B$2", true},
		{"'My Sheet'!$A$1:$C$4", "My Sheet", "$A$1:$C$4", true},
		{"Sheet1!A1:B2", "Sheet1", "A1:B2", true},
		{"$D$5", "", "$D$5", true},
		{"SUM(A1:B2)", "", "", false},
		{"A1+B2", "", "", false},
	}
	for _, tc := range tests {
		sheet, rangeRef, ok := SplitRef(tc.in)
		if ok != tc.ok {
			t.Errorf("SplitRef(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if sheet != tc.sheet || rangeRef != tc.rangeRef {
			t.Errorf("SplitRef(%q) = (%q, %q), want (%q, %q)", tc.in, sheet, rangeRef, tc.sheet, tc.rangeRef)
		}
	}
}
