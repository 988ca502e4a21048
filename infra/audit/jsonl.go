package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	coreaudit "github.com/pierreba/era/core/audit"
)

// RotatingJSONLStore stores run records in a JSONL file with automatic
// rotation.
type RotatingJSONLStore struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewRotatingJSONLStore creates a store with rotation options in megabytes
// and days.
func NewRotatingJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLStore, error) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   false,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &RotatingJSONLStore{logger: lj, path: path}, nil
}

// Append writes the record and triggers rotation if needed.
func (s *RotatingJSONLStore) Append(ctx context.Context, rec coreaudit.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.logger)
	return enc.Encode(rec)
}

// Query reads all log files including rotated ones.
func (s *RotatingJSONLStore) Query(ctx context.Context, q coreaudit.Query) ([]coreaudit.Record, error) {
	_ = ctx
	pattern := s.path + "*"
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var res []coreaudit.Record
	for _, f := range files {
		file, err := os.Open(f)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			var r coreaudit.Record
			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
				continue
			}
			if q.Matches(r) {
				res = append(res, r)
			}
		}
		_ = file.Close()
	}
	return res, nil
}

// Close closes the underlying writer.
func (s *RotatingJSONLStore) Close() error {
	return s.logger.Close()
}
