package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JsonlStorage appends records to a JSONL file. When maxBytes is set the file is
// rotated to <path>.1 before it would grow past the limit.
type JsonlStorage struct {
	path     string
	maxBytes int64

	mu sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// NewRotatingJsonlStorage keeps at most one rotated file next to path.
func NewRotatingJsonlStorage(path string, maxBytes int64) *JsonlStorage {
	return &JsonlStorage{path: path, maxBytes: maxBytes}
}

// Path returns the output file.
func (s *JsonlStorage) Path() string {
	return s.path
}

// Append writes each record as one JSON line. The batch is encoded before the file
// is touched, so a bad record writes nothing.
func (s *JsonlStorage) Append(records ...any) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotate(int64(buf.Len())); err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}

func (s *JsonlStorage) rotate(incoming int64) error {
	if s.maxBytes <= 0 {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat output file: %w", err)
	}
	if info.Size() == 0 || info.Size()+incoming <= s.maxBytes {
		return nil
	}
	if err := os.Rename(s.path, s.path+".1"); err != nil {
		return fmt.Errorf("rotate output file: %w", err)
	}
	return nil
}
