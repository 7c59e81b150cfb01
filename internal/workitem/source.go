package workitem

import (
	"fmt"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"
	"gopkg.in/yaml.v3"
)

// Source produces the candidate work items for a run. The findings scanners
// that would normally implement this (lint/TODO/test-gap/issue crawlers) are
// out of scope for this repository; YAMLSource stands in as the one
// concrete, real source so the planner and engine have something to run
// against end to end.
type Source interface {
	Discover() ([]Item, error)
}

// YAMLSource loads a fixed list of work items from a YAML file on disk.
type YAMLSource struct {
	Path string
}

// NewYAMLSource returns a Source reading work items from path.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{Path: path}
}

type yamlFile struct {
	Items []Item `yaml:"items"`
}

// Discover reads and decodes the YAML file, filling in IDs for any item that
// omits one and discovery timestamps defaulted to now.
func (s *YAMLSource) Discover() ([]Item, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading work items: %w", err)
	}

	var doc yamlFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing work items: %w", err)
	}

	for i := range doc.Items {
		item := &doc.Items[i]
		if item.ID == "" {
			item.ID = ComputeID(item.Source, item.TargetFiles, item.Title)
		}
		if item.Source == "" {
			item.Source = SourceCustom
		}
		if item.Complexity == "" {
			item.Complexity = ComplexitySimple
		}
		if item.Mode == "" {
			item.Mode = ModeNewBranchPR
		}
	}

	return doc.Items, nil
}

// LoadIgnoreFile loads a .ocignore file from repoDir, if present. A missing
// file yields a nil matcher (FilesFullyIgnored always returns false for a
// nil matcher).
func LoadIgnoreFile(repoDir string) (*ignore.GitIgnore, error) {
	path := filepath.Join(repoDir, ".ocignore")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading .ocignore: %w", err)
	}

	lines := splitLines(string(data))
	return ignore.CompileIgnoreLines(lines...), nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// FilesFullyIgnored returns true only when every one of files matches gi.
// A nil matcher or an empty file list never counts as fully ignored. An item
// whose target files are all ignore-listed (docs, vendored data, etc.) is
// dropped before planning rather than spending budget on it.
func FilesFullyIgnored(files []string, gi *ignore.GitIgnore) bool {
	if gi == nil || len(files) == 0 {
		return false
	}
	for _, f := range files {
		if !gi.MatchesPath(f) {
			return false
		}
	}
	return true
}

// FilterIgnored removes items whose target files are fully covered by gi.
func FilterIgnored(items []Item, gi *ignore.GitIgnore) []Item {
	if gi == nil {
		return items
	}
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if FilesFullyIgnored(item.TargetFiles, gi) {
			continue
		}
		out = append(out, item)
	}
	return out
}
