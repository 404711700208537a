// Package rels reads and writes OOXML relationship files (.rels).
//
// Relationship IDs are opaque keys ("rId1", "comments", ...) that map to a
// part target and a schema type URI.  They are scoped to the part whose
// sibling _rels/ directory carries the file.
package rels

import (
	"encoding/xml"
	"fmt"
	"sort"
)

// Namespace is the XML namespace of every .rels document.
const Namespace = "http://schemas.openxmlformats.org/package/2006/relationships"

// Relationship type URIs used by SpreadsheetML parts.
const (
	TypeOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	TypeWorksheet      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet"
	TypeSharedStrings  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/sharedStrings"
	TypeStyles         = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles"
	TypeComments       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/comments"
	TypeHyperlink      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink"
	TypeTable          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/table"
	TypeCoreProps      = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	TypeExtendedProps  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/extended-properties"
)

// Rel is one relationship entry.
type Rel struct {
	ID         string
	Type       string
	Target     string
	TargetMode string // "External" for hyperlink targets outside the package
}

type xmlRelationships struct {
	XMLName       xml.Name `xml:"Relationships"`
	Relationships []xmlRel `xml:"Relationship"`
}

type xmlRel struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

// Parse parses the raw bytes of a .rels file into a map of ID → Rel.
func Parse(data []byte) (map[string]Rel, error) {
	var doc xmlRelationships
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rels: parse: %w", err)
	}
	m := make(map[string]Rel, len(doc.Relationships))
	for _, r := range doc.Relationships {
		m[r.ID] = Rel{ID: r.ID, Type: r.Type, Target: r.Target, TargetMode: r.TargetMode}
	}
	return m, nil
}

// Marshal renders the given relationships as a complete .rels document,
// sorted by ID for deterministic output.
func Marshal(entries []Rel) []byte {
	sorted := make([]Rel, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	buf := []byte(xml.Header)
	buf = append(buf, `<Relationships xmlns="`+Namespace+`">`...)
	for _, r := range sorted {
		buf = append(buf, `<Relationship Id="`...)
		buf = appendEscaped(buf, r.ID)
		buf = append(buf, `" Type="`...)
		buf = appendEscaped(buf, r.Type)
		buf = append(buf, `" Target="`...)
		buf = appendEscaped(buf, r.Target)
		if r.TargetMode != "" {
			buf = append(buf, `" TargetMode="`...)
			buf = appendEscaped(buf, r.TargetMode)
		}
		buf = append(buf, `"/>`...)
	}
	buf = append(buf, `</Relationships>`...)
	return buf
}

func appendEscaped(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			dst = append(dst, "&amp;"...)
		case '<':
			dst = append(dst, "&lt;"...)
		case '>':
			dst = append(dst, "&gt;"...)
		case '"':
			dst = append(dst, "&quot;"...)
		default:
			dst = append(dst, s[i])
		}
	}
	return dst
}
