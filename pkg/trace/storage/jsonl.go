package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"atlasbridge-hq/atlasbridge/pkg/trace"
)

// JSONLConfig configures the append-only JSONL trace backend.
type JSONLConfig struct {
	// Path is the active trace file.
	Path string

	// MaxBytes rotates the active file once it grows past this size.
	// Default: 10 MiB.
	MaxBytes int64

	// MaxArchives is how many rotated files to keep. Default: 3.
	MaxArchives int
}

// DefaultJSONLConfig returns the default JSONL configuration for the given
// path.
func DefaultJSONLConfig(path string) *JSONLConfig {
	return &JSONLConfig{
		Path:        path,
		MaxBytes:    10 * 1024 * 1024,
		MaxArchives: 3,
	}
}

// JSONLStorage persists decisions as one canonical JSON record per line in
// an append-only file. When the active file exceeds MaxBytes it is renamed
// to <path>.1 and a fresh file (and a fresh hash chain) is started; older
// archives shift up and the oldest beyond MaxArchives is deleted.
type JSONLStorage struct {
	mu     sync.RWMutex
	config *JSONLConfig
	logger *slog.Logger
}

// NewJSONLStorage creates a JSONL trace backend, creating the parent
// directory if needed.
func NewJSONLStorage(config *JSONLConfig) (*JSONLStorage, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("jsonl trace path cannot be empty")
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 10 * 1024 * 1024
	}
	if config.MaxArchives == 0 {
		config.MaxArchives = 3
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o700); err != nil {
		return nil, trace.NewStorageError("jsonl", "mkdir", err)
	}

	return &JSONLStorage{
		config: config,
		logger: slog.Default().With("component", "trace.storage.jsonl"),
	}, nil
}

// Append writes one decision as a JSON line.
func (s *JSONLStorage) Append(ctx context.Context, d *trace.Decision) error {
	line, err := json.Marshal(d)
	if err != nil {
		return trace.NewStorageError("jsonl", "marshal", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return trace.NewStorageError("jsonl", "open", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return trace.NewStorageError("jsonl", "append", err)
	}
	return nil
}

// MaybeRotate archives the active file when it exceeds MaxBytes. It
// implements trace.Rotator; the Log resets the hash chain when rotation
// happens.
func (s *JSONLStorage) MaybeRotate() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.config.Path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, trace.NewStorageError("jsonl", "stat", err)
	}
	if info.Size() < s.config.MaxBytes {
		return false, nil
	}

	// Shift archives: .2 -> .3, .1 -> .2, then active -> .1. The archive
	// past MaxArchives is overwritten by the rename.
	for i := s.config.MaxArchives - 1; i >= 1; i-- {
		old := fmt.Sprintf("%s.%d", s.config.Path, i)
		if _, err := os.Stat(old); err == nil {
			next := fmt.Sprintf("%s.%d", s.config.Path, i+1)
			if err := os.Rename(old, next); err != nil {
				s.logger.Warn("failed to shift trace archive", "from", old, "to", next, "error", err)
			}
		}
	}

	if err := os.Rename(s.config.Path, s.config.Path+".1"); err != nil {
		return false, trace.NewStorageError("jsonl", "rotate", err)
	}
	return true, nil
}

// List returns decisions from the active file in append order, optionally
// filtered by session id. Unparseable lines are skipped; integrity
// verification is where corruption is surfaced.
func (s *JSONLStorage) List(ctx context.Context, sessionID string) ([]*trace.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.config.Path)
	if os.IsNotExist(err) {
		return []*trace.Decision{}, nil
	}
	if err != nil {
		return nil, trace.NewStorageError("jsonl", "open", err)
	}
	defer f.Close()

	var out []*trace.Decision
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var d trace.Decision
		if err := json.Unmarshal(line, &d); err != nil {
			s.logger.Warn("skipping unparseable trace line", "error", err)
			continue
		}
		if sessionID != "" && d.SessionID != sessionID {
			continue
		}
		out = append(out, &d)
	}
	if err := scanner.Err(); err != nil {
		return nil, trace.NewStorageError("jsonl", "scan", err)
	}
	if out == nil {
		out = []*trace.Decision{}
	}
	return out, nil
}

// Count returns the number of decisions in the active file.
func (s *JSONLStorage) Count(ctx context.Context) (int64, error) {
	entries, err := s.List(ctx, "")
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

// Last returns the final decision in the active file, or nil when empty.
func (s *JSONLStorage) Last(ctx context.Context) (*trace.Decision, error) {
	entries, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[len(entries)-1], nil
}

// FindByIdempotencyKey scans the active file for the given dedup key.
func (s *JSONLStorage) FindByIdempotencyKey(ctx context.Context, key string) (*trace.Decision, error) {
	entries, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, d := range entries {
		if d.IdempotencyKey == key {
			return d, nil
		}
	}
	return nil, nil
}

// Close releases nothing; the file is opened per operation.
func (s *JSONLStorage) Close() error {
	return nil
}
