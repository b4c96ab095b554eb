// Package fs decides which working-copy entries stay hidden from ENI clients.
package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// IgnoreFileName is read from the working-copy root for extra patterns.
const IgnoreFileName = ".eniignore"

// FolderMarker is the empty file that keeps a folder alive in git.
const FolderMarker = ".eni-folder"

// builtinPatterns hide repository plumbing from every listing.
var builtinPatterns = []string{FolderMarker, IgnoreFileName, ".git", ".gitignore", ".gitattributes"}

// IgnoreMatcher hides working-copy entries from listings.
//
// A pattern without '/' is tested against the entry's basename, so "*.bak"
// hides backups at any depth. A pattern with '/' is tested against the whole
// slash-separated path; '*' stops at separators and '**' crosses them.
type IgnoreMatcher struct {
	names []glob.Glob
	paths []glob.Glob
	raw   []string
}

// NewIgnoreMatcher compiles patterns on top of the builtin ones. Blank
// lines, '#' comments and patterns that do not compile are dropped.
func NewIgnoreMatcher(patterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, p := range append(append([]string{}, builtinPatterns...), patterns...) {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		if strings.Contains(p, "/") {
			m.paths = append(m.paths, g)
		} else {
			m.names = append(m.names, g)
		}
		m.raw = append(m.raw, p)
	}
	return m
}

// Patterns returns the compiled patterns in the order they were given,
// builtin ones first.
func (m *IgnoreMatcher) Patterns() []string {
	return append([]string(nil), m.raw...)
}

// Match reports whether p should be hidden. Backslashes count as separators.
func (m *IgnoreMatcher) Match(p string) bool {
	p = strings.Trim(strings.ReplaceAll(p, `\`, "/"), "/")
	if p == "" {
		return false
	}
	for _, g := range m.paths {
		if g.Match(p) {
			return true
		}
	}
	base := path.Base(p)
	for _, g := range m.names {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// ReadIgnorePatterns returns the lines of an ignore file unfiltered;
// NewIgnoreMatcher drops comments and blanks.
func ReadIgnorePatterns(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore patterns: %w", err)
	}
	return lines, nil
}

// ParseIgnoreFile reads the ignore file at name. A missing file yields no
// patterns and no error.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()
	return ReadIgnorePatterns(f)
}
