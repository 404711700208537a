// Package container wraps archive/zip with the policies the codec needs:
// part lookup by name on read, deflate-level selection and reproducible
// (zero-timestamp) entries on write, and an atomic temp-file-plus-rename
// sink so a failed save never clobbers an existing file.
package container

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"io"
	"os"
	"path/filepath"

	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

// Level selects the deflate compression applied to archive entries.
type Level int

const (
	// None stores entries uncompressed — fastest saves, largest files.
	None Level = iota
	// Fast is deflate level 1.
	Fast
	// Default is deflate level 6.
	Default
	// Best is deflate level 9 — smallest files, slowest saves.
	Best
)

// flateLevel maps a Level to its compress/flate constant.
func (l Level) flateLevel() int {
	switch l {
	case Fast:
		return 1
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}

// ── reading ───────────────────────────────────────────────────────────────────

// Reader provides part access over an open archive.
type Reader struct {
	zr    *zip.Reader
	files map[string]*zip.File
}

// NewReader opens an archive from an io.ReaderAt.  A malformed central
// directory fails with Container.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, xlsxerr.Wrap(xlsxerr.Container, err, "open archive")
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	return &Reader{zr: zr, files: files}, nil
}

// NewReaderBytes opens an archive held in memory.
func NewReaderBytes(data []byte) (*Reader, error) {
	return NewReader(bytes.NewReader(data), int64(len(data)))
}

// Has reports whether the archive contains a part named name.
func (r *Reader) Has(name string) bool {
	_, ok := r.files[name]
	return ok
}

// Part reads the full contents of the named part.  A missing part fails
// with Container; a truncated or corrupt entry stream also surfaces as
// Container so callers see one failure class for archive damage.
func (r *Reader) Part(name string) ([]byte, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, xlsxerr.New(xlsxerr.Container, "part %q not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, xlsxerr.Wrap(xlsxerr.Container, err, "open part %q", name)
	}
	data, readErr := io.ReadAll(rc)
	closeErr := rc.Close()
	if readErr != nil {
		return nil, xlsxerr.Wrap(xlsxerr.Container, readErr, "read part %q", name)
	}
	// A decompressor checksum failure only surfaces on Close; do not mask
	// it behind an apparently successful read.
	if closeErr != nil {
		return nil, xlsxerr.Wrap(xlsxerr.Container, closeErr, "read part %q", name)
	}
	return data, nil
}

// ── writing ───────────────────────────────────────────────────────────────────

// Writer emits archive entries in declaration order.
type Writer struct {
	zw    *zip.Writer
	level Level
}

// NewWriter wraps w.  The writer works against any io.Writer: archive/zip
// produces a streamable central directory, so non-seekable sinks need no
// special casing.
func NewWriter(w io.Writer, level Level) *Writer {
	zw := zip.NewWriter(w)
	if level != None {
		fl := level.flateLevel()
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, fl)
		})
	}
	return &Writer{zw: zw, level: level}
}

// Create starts a new entry and returns its write stream, valid until the
// next Create or Close.  Entry names must be ASCII part paths; timestamps
// are zeroed so identical input produces identical archives.
func (w *Writer) Create(name string) (io.Writer, error) {
	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 {
			return nil, xlsxerr.New(xlsxerr.Container, "entry name %q is not ASCII", name)
		}
	}
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
	if w.level == None {
		hdr.Method = zip.Store
	}
	out, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return nil, xlsxerr.Wrap(xlsxerr.Io, err, "create entry %q", name)
	}
	return out, nil
}

// Put writes a complete entry in one call.
func (w *Writer) Put(name string, data []byte) error {
	out, err := w.Create(name)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return xlsxerr.Wrap(xlsxerr.Io, err, "write entry %q", name)
	}
	return nil
}

// Close finalizes the central directory.
func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		return xlsxerr.Wrap(xlsxerr.Io, err, "finalize archive")
	}
	return nil
}

// ── file sink ─────────────────────────────────────────────────────────────────

// WriteFile streams an archive to path through emit, writing to a
// temporary sibling first and renaming into place only after a fully
// successful emit, so a mid-save failure leaves any existing file at path
// untouched.
func WriteFile(path string, level Level, emit func(*Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return xlsxerr.Wrap(xlsxerr.Io, err, "create temp file in %q", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	w := NewWriter(tmp, level)
	if err := emit(w); err != nil {
		cleanup()
		return err
	}
	if err := w.Close(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return xlsxerr.Wrap(xlsxerr.Io, err, "close temp file %q", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return xlsxerr.Wrap(xlsxerr.Io, err, "rename %q to %q", tmpName, path)
	}
	return nil
}

// OpenFile opens path for reading.
func OpenFile(path string) (*Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, xlsxerr.Wrap(xlsxerr.Io, err, "open %q", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, xlsxerr.Wrap(xlsxerr.Io, err, "stat %q", path)
	}
	r, err := NewReader(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return r, f.Close, nil
}
