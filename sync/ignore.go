package sync

import (
	"bufio"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// IgnoreFile is the name of the per-folder ignore list honoured by imports.
const IgnoreFile = ".storeignore"

// Ignore holds glob patterns loaded from an ignore file. Entries whose
// name matches a pattern are skipped by folder imports and the inbox
// watcher.
type Ignore struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	pattern string
	dirOnly bool // trailing / in source line
}

// LoadIgnore reads an ignore file. A missing or unreadable file ignores
// nothing.
func LoadIgnore(fs afero.Fs, path string) *Ignore {
	ig := &Ignore{}
	f, err := fs.Open(path)
	if err != nil {
		return ig
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p := ignorePattern{pattern: line}
		if strings.HasSuffix(line, "/") {
			p.pattern = strings.TrimSuffix(line, "/")
			p.dirOnly = true
		}
		ig.patterns = append(ig.patterns, p)
	}
	return ig
}

// IsIgnored reports whether an entry name matches. Hidden names and the
// ignore file itself are always ignored. dirOnly patterns need isDir.
func (ig *Ignore) IsIgnored(name string, isDir bool) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".storesync-tmp") {
		return true
	}
	if ig == nil {
		return false
	}
	for _, p := range ig.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if matched, _ := filepath.Match(p.pattern, name); matched {
			return true
		}
	}
	return false
}
