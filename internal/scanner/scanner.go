// Package scanner implements the Project Scanner (C2): walking a project
// root, filtering excluded paths, and enumerating in-scope source files with
// their modification times.
//
// Grounded on original_source/aitoolkit/librarian/server.py's
// scan_directory (same default exclude set, same hidden-directory rule).
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultExcludeDirs mirrors the original implementation's exclude list.
var DefaultExcludeDirs = map[string]bool{
	"venv":         true,
	"env":          true,
	".venv":        true,
	".env":         true,
	"__pycache__":  true,
	"node_modules": true,
	".git":         true,
}

// SourceExtensions marks which file extensions are in-scope source files.
var SourceExtensions = map[string]bool{
	".py":   true,
	".go":   true,
	".js":   true,
	".ts":   true,
	".java": true,
	".c":    true,
	".cpp":  true,
	".cs":   true,
	".rb":   true,
	".php":  true,
}

// Entry is one scanned file: its absolute path and last-modified time.
type Entry struct {
	AbsPath string
	ModTime time.Time
}

// Scan walks root recursively, excluding any path segment that starts with
// "." or appears in excludeDirs (nil selects DefaultExcludeDirs), and
// returns every in-scope source file found. Output is sorted by AbsPath so
// callers get a deterministic order regardless of file-system iteration
// order.
func Scan(root string, excludeDirs map[string]bool) ([]Entry, error) {
	if excludeDirs == nil {
		excludeDirs = DefaultExcludeDirs
	}

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: skip it, keep scanning siblings.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || excludeDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !SourceExtensions[filepath.Ext(name)] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, Entry{AbsPath: path, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].AbsPath < entries[j].AbsPath })
	return entries, nil
}

// IsExcludedDir reports whether name should be skipped per the same rule
// Scan applies, for callers that walk independently but must respect
// identical exclusions.
func IsExcludedDir(name string, excludeDirs map[string]bool) bool {
	if excludeDirs == nil {
		excludeDirs = DefaultExcludeDirs
	}
	return strings.HasPrefix(name, ".") || excludeDirs[name]
}

// Exists reports whether path exists and is a directory.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
