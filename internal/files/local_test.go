package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := NewStorage(t.TempDir(), "http://localhost:8080")
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	return s
}

func TestSaveAndRemove(t *testing.T) {
	s := newTestStorage(t)

	url, storedName, err := s.Save("report.pdf", strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080"+URLPrefix) {
		t.Fatalf("url = %q", url)
	}
	if !strings.HasSuffix(storedName, "_report.pdf") {
		t.Fatalf("stored name = %q", storedName)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), storedName))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "pdf-bytes" {
		t.Fatalf("content = %q", data)
	}

	if err := s.Remove(url); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), storedName)); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
}

func TestSaveCollidingNames(t *testing.T) {
	s := newTestStorage(t)

	_, name1, err := s.Save("pic.png", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("save 1: %v", err)
	}
	_, name2, err := s.Save("pic.png", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("save 2: %v", err)
	}
	if name1 == name2 {
		t.Fatalf("colliding stored names: %q", name1)
	}
}

func TestSaveSanitizesName(t *testing.T) {
	s := newTestStorage(t)

	_, storedName, err := s.Save("../../etc passwd", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if strings.ContainsAny(storedName, "/ ") || strings.Contains(storedName, "..") {
		t.Fatalf("unsafe stored name: %q", storedName)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), storedName)); err != nil {
		t.Fatalf("file not inside storage dir: %v", err)
	}
}

func TestRemoveRejectsForeignURLs(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Remove("http://localhost:8080/other/file.txt"); err == nil {
		t.Fatal("non-assets url accepted")
	}
	if err := s.Remove("http://localhost:8080" + URLPrefix + "../secret"); err == nil {
		t.Fatal("traversal name accepted")
	}
	if err := s.Remove("http://localhost:8080" + URLPrefix); err == nil {
		t.Fatal("empty name accepted")
	}
}

func TestRemoveMissingFile(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Remove("http://localhost:8080" + URLPrefix + "ghost.txt"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
