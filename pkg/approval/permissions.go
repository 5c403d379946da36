package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FilePermissionList persists always-allow rules to a JSON file. Writes are
// read-modify-write under a lock; duplicates are dropped.
type FilePermissionList struct {
	mu   sync.Mutex
	path string
}

type permissionFile struct {
	AlwaysAllow []string `json:"always_allow"`
}

// NewFilePermissionList creates a file-backed permission list, creating the
// parent directory if needed.
func NewFilePermissionList(path string) (*FilePermissionList, error) {
	if path == "" {
		return nil, fmt.Errorf("permission list path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create permission list directory: %w", err)
	}
	return &FilePermissionList{path: path}, nil
}

// AddAlwaysAllowRule appends a rule to the list if not already present.
func (l *FilePermissionList) AddAlwaysAllowRule(ctx context.Context, rule string) error {
	if rule == "" {
		return fmt.Errorf("always-allow rule cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var pf permissionFile
	data, err := os.ReadFile(l.path)
	if err == nil {
		if err := json.Unmarshal(data, &pf); err != nil {
			return fmt.Errorf("failed to parse permission list: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read permission list: %w", err)
	}

	for _, existing := range pf.AlwaysAllow {
		if existing == rule {
			return nil
		}
	}
	pf.AlwaysAllow = append(pf.AlwaysAllow, rule)

	out, err := json.MarshalIndent(&pf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, out, 0o600)
}

// Allows reports whether rule is on the list. Read failures count as not
// allowed.
func (l *FilePermissionList) Allows(rule string) bool {
	rules, err := l.Rules()
	if err != nil {
		return false
	}
	for _, existing := range rules {
		if existing == rule {
			return true
		}
	}
	return false
}

// Rules returns the persisted always-allow rules.
func (l *FilePermissionList) Rules() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pf permissionFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse permission list: %w", err)
	}
	return pf.AlwaysAllow, nil
}
