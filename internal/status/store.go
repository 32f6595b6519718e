package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrWrite wraps status file write failures so callers can treat persistence
// errors as non-fatal without string matching.
var ErrWrite = errors.New("status write failed")

// Store persists the single current status record.
type Store interface {
	Write(rec *Record) error
	Read() (*Record, bool, error)
}

// FileStore writes the record as indented JSON, replacing the file in full on
// every write. The temp-file-then-rename dance keeps readers from ever seeing
// a partial record.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fs *FileStore) Write(rec *Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Read returns the last written record, or ok=false if no record exists yet.
func (fs *FileStore) Read() (*Record, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read status file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("failed to decode status file: %w", err)
	}
	return &rec, true, nil
}
