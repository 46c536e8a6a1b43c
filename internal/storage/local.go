package storage

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Read before the first successful Write.
var ErrNotFound = errors.New("audio file not found")

var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".m4a":  "audio/mp4",
}

// LocalStore owns the single audio file inside the public directory.
// Every Write replaces the file; there is no history on disk.
type LocalStore struct {
	dir  string
	file string
}

func NewLocalStore(dir, file string) *LocalStore {
	if dir == "" {
		dir = "public"
	}
	if file == "" {
		file = "output.mp3"
	}
	return &LocalStore{dir: dir, file: file}
}

// EnsureDir creates the public directory if it does not exist yet.
func (s *LocalStore) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create public dir %s: %w", s.dir, err)
	}
	return nil
}

func (s *LocalStore) Path() string { return filepath.Join(s.dir, s.file) }
func (s *LocalStore) Ext() string  { return strings.ToLower(filepath.Ext(s.file)) }

// URLPath is the path the file is served under.
func (s *LocalStore) URLPath() string { return "/" + s.file }

// Write replaces the audio file. The bytes land in a temp file in the same
// directory first and are renamed into place, so readers see either the old
// or the new file.
func (s *LocalStore) Write(data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+s.file+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", s.Path(), err)
	}
	return nil
}

// Read returns the current file and its content type.
func (s *LocalStore) Read() ([]byte, string, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", s.Path(), err)
	}
	return data, ContentType(s.file, data), nil
}

// ContentType picks the type from the file extension, sniffing the data when
// the extension is unknown.
func ContentType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := audioContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
