// Package status persists monitoring state as JSON files for external
// consumers such as orchestrator health probes. Only one writer exists per
// file, so last-writer-wins is the only consistency guarantee needed.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDir is where the daemon keeps its status files unless configured
// otherwise.
const DefaultDir = "/var/lib/procwarden"

// Store writes named JSON documents under a base directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created lazily
// on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the base directory.
func (s *Store) Dir() string {
	return s.dir
}

// Write overwrites the named snapshot with payload, atomically via a
// temp-file rename so readers never observe a partial document.
func (s *Store) Write(name string, payload any) error {
	if err := s.ensureDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := s.path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Append adds record to the named JSON array file, creating it if needed.
// The whole array is rewritten; these logs are small and bounded by the
// caller, so readability wins over append efficiency.
func (s *Store) Append(name string, record any) error {
	if err := s.ensureDir(); err != nil {
		return err
	}

	path := s.path(name)
	var records []json.RawMessage
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("existing %s is not a JSON array: %w", name, err)
		}
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", name, err)
	}
	records = append(records, raw)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// AppendLine adds record as one JSON line to the named .jsonl file.
func (s *Store) AppendLine(name string, record any) error {
	if err := s.ensureDir(); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", name, err)
	}

	f, err := os.OpenFile(s.path(name)+"l", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Read unmarshals the named snapshot into out.
func (s *Store) Read(name string, out any) error {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *Store) ensureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}
