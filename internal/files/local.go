// Package files stores uploaded message attachments on local disk and maps
// them to public /assets URLs.
package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// URLPrefix is the public path under which stored files are served.
const URLPrefix = "/assets/"

// Storage writes attachments into a single directory. Stored names get a
// uuid prefix so colliding client file names never overwrite each other.
type Storage struct {
	dir     string
	baseURL string
}

// NewStorage creates the directory if needed. baseURL is the externally
// reachable server origin, e.g. "http://localhost:8080".
func NewStorage(dir, baseURL string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create files dir: %w", err)
	}
	return &Storage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory files are stored in.
func (s *Storage) Dir() string {
	return s.dir
}

// Save writes the file and returns its public URL and stored name.
func (s *Storage) Save(name string, r io.Reader) (url, storedName string, err error) {
	storedName = uuid.NewString() + "_" + sanitize(name)

	f, err := os.Create(filepath.Join(s.dir, storedName))
	if err != nil {
		return "", "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", "", fmt.Errorf("write file: %w", err)
	}

	return s.baseURL + URLPrefix + storedName, storedName, nil
}

// Remove deletes the stored file behind a public URL. URLs that do not point
// into the assets path are rejected.
func (s *Storage) Remove(fileURL string) error {
	idx := strings.Index(fileURL, URLPrefix)
	if idx < 0 {
		return fmt.Errorf("not an assets url: %q", fileURL)
	}
	name := fileURL[idx+len(URLPrefix):]
	if name == "" || name != sanitize(name) {
		return fmt.Errorf("invalid stored file name: %q", name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// sanitize strips path separators and spaces from a client file name.
func sanitize(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "")
	name = strings.ReplaceAll(name, string(filepath.Separator), "")
	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	return name
}
