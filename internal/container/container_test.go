package container

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

func buildArchive(t *testing.T, level Level, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, level)
	for name, content := range parts {
		if err := w.Put(name, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, level := range []Level{None, Fast, Default, Best} {
		data := buildArchive(t, level, map[string]string{
			"a/b.xml": "<x>payload</x>",
			"c.xml":   "tiny",
		})
		r, err := NewReaderBytes(data)
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		got, err := r.Part("a/b.xml")
		if err != nil || string(got) != "<x>payload</x>" {
			t.Errorf("level %d: Part = (%q, %v)", level, got, err)
		}
		if !r.Has("c.xml") || r.Has("missing") {
			t.Errorf("level %d: Has misreports", level)
		}
	}
}

func TestMissingPart(t *testing.T) {
	data := buildArchive(t, None, map[string]string{"only.xml": "x"})
	r, _ := NewReaderBytes(data)
	_, err := r.Part("other.xml")
	if !errors.Is(err, xlsxerr.Container) {
		t.Errorf("missing part error = %v, want Container", err)
	}
}

func TestCorruptCentralDirectory(t *testing.T) {
	data := buildArchive(t, None, map[string]string{"a.xml": "x"})
	_, err := NewReaderBytes(data[:len(data)-10])
	if !errors.Is(err, xlsxerr.Container) {
		t.Errorf("truncated directory error = %v, want Container", err)
	}
}

func TestNonASCIIEntryName(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, None)
	if _, err := w.Create("ärger.xml"); !errors.Is(err, xlsxerr.Container) {
		t.Errorf("non-ASCII name error = %v, want Container", err)
	}
}

func TestZeroedTimestamps(t *testing.T) {
	a := buildArchive(t, None, map[string]string{"a.xml": "same"})
	b := buildArchive(t, None, map[string]string{"a.xml": "same"})
	if !bytes.Equal(a, b) {
		t.Error("identical input produced different archives")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.zip")

	if err := WriteFile(path, None, func(w *Writer) error {
		return w.Put("a.xml", []byte("v1"))
	}); err != nil {
		t.Fatal(err)
	}

	// A failing emit leaves the existing file untouched and no temp debris.
	failErr := xlsxerr.New(xlsxerr.Custom, "boom")
	err := WriteFile(path, None, func(w *Writer) error {
		_ = w.Put("a.xml", []byte("v2"))
		return failErr
	})
	if !errors.Is(err, xlsxerr.Custom) {
		t.Fatalf("emit failure = %v", err)
	}
	r, closeFn, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	got, err := r.Part("a.xml")
	if err != nil || string(got) != "v1" {
		t.Errorf("surviving content = (%q, %v), want v1", got, err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("directory has %d entries, want 1 (temp file left behind?)", len(files))
	}
}
