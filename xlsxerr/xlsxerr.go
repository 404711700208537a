// Package xlsxerr defines the closed error taxonomy shared by every package
// in go-xlsx.
//
// All failures surfaced by the library are (or wrap) an [*Error] whose [Kind]
// identifies the failure class, except those of the root package's
// date-serial helpers, which are plain errors.  Callers match with [errors.Is] against the
// Kind sentinels:
//
//	if errors.Is(err, xlsxerr.Container) { ... }
//
// Parse failures additionally carry the archive part name and the byte
// offset at which the parser gave up.
package xlsxerr

import "fmt"

// Kind is the failure class of an [*Error].  The set is closed; collaborator
// packages extend it only through [Custom].
type Kind int

const (
	// Io is an underlying reader/writer failure.
	Io Kind = iota + 1
	// Container is a malformed ZIP central directory or entry.
	Container
	// Xml is a malformed XML token stream or encoding error.
	Xml
	// InvalidCoordinate is an out-of-range or unparseable cell address.
	InvalidCoordinate
	// WorksheetNotFound is a sheet lookup by name with no match.
	WorksheetNotFound
	// WorksheetAlreadyExists is a sheet-name collision under case folding.
	WorksheetAlreadyExists
	// NoWorksheets is an attempt to save a workbook with zero sheets.
	NoWorksheets
	// InvalidFormat is structurally well-formed but semantically invalid
	// OOXML: a missing required attribute, a dangling reference, a shared
	// formula used before its master.
	InvalidFormat
	// ParseError is a recoverable parse failure, carrying the part name and
	// byte offset of the failure.
	ParseError
	// Custom is the escape hatch for collaborator-specific failures.
	Custom
)

// String returns the taxonomy name of k.
func (k Kind) String() string {
	switch k {
	case Io:
		return "Io"
	case Container:
		return "Container"
	case Xml:
		return "Xml"
	case InvalidCoordinate:
		return "InvalidCoordinate"
	case WorksheetNotFound:
		return "WorksheetNotFound"
	case WorksheetAlreadyExists:
		return "WorksheetAlreadyExists"
	case NoWorksheets:
		return "NoWorksheets"
	case InvalidFormat:
		return "InvalidFormat"
	case ParseError:
		return "ParseError"
	case Custom:
		return "Custom"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error implements the error interface for a bare Kind so that the sentinel
// values can be used directly as [errors.Is] targets.
func (k Kind) Error() string { return k.String() }

// Error is a classified library failure.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Part is the archive part being processed when the failure occurred
	// (e.g. "xl/worksheets/sheet1.xml").  Empty when not part-scoped.
	Part string
	// Offset is the byte offset within Part at which the parser failed.
	// Zero when unknown or not applicable.
	Offset int64
	// Msg is the human-readable description.
	Msg string
	// Err is the wrapped cause, if any.
	Err error
}

// New returns an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Parse returns a ParseError positioned at offset within part.
func Parse(part string, offset int64, format string, args ...any) *Error {
	return &Error{Kind: ParseError, Part: part, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Error renders the failure as "Kind: msg" with part/offset context when
// present.
func (e *Error) Error() string {
	s := e.Kind.String() + ": " + e.Msg
	if e.Part != "" {
		s += fmt.Sprintf(" (part %q, offset %d)", e.Part, e.Offset)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind sentinel, so that
// errors.Is(err, xlsxerr.Container) matches any Container-kind error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}
