// Package mapping reads and writes the issue-number hand-off file used to
// resolve counterparts in later runs without re-matching titles.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joescharf/milesync/internal/models"
)

// DefaultPath is where the mapping file is written relative to the working
// directory.
const DefaultPath = ".github/issue-mappings.json"

// New builds the hand-off document for a run.
func New(source, target models.Repo, issues models.NumberMap, ts time.Time) *models.IssueMapping {
	m := &models.IssueMapping{
		Source:    source.String(),
		Target:    target.String(),
		Issues:    make(map[string]int, len(issues)),
		Timestamp: ts,
	}
	for src, dst := range issues {
		m.Issues[strconv.Itoa(src)] = dst
	}
	return m
}

// Numbers decodes the string-keyed mapping back into numbers.
func Numbers(m *models.IssueMapping) (models.NumberMap, error) {
	out := make(models.NumberMap, len(m.Issues))
	for k, v := range m.Issues {
		src, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid source issue number %q: %w", k, err)
		}
		out[src] = v
	}
	return out, nil
}

// Matches reports whether m was written for the given repository pair.
func Matches(m *models.IssueMapping, source, target models.Repo) bool {
	return m.Source == source.String() && m.Target == target.String()
}

// Save writes m as indented JSON, replacing any previous file.
func Save(path string, m *models.IssueMapping) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create mapping directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".issue-mappings-*.json")
	if err != nil {
		return fmt.Errorf("create temp mapping file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write mapping: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close mapping: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod mapping: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace mapping file: %w", err)
	}
	return nil
}

// Load reads a mapping file. A missing file yields an error matching
// os.ErrNotExist.
func Load(path string) (*models.IssueMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	var m models.IssueMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	if m.Issues == nil {
		m.Issues = map[string]int{}
	}
	return &m, nil
}
