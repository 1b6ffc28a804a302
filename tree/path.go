package tree

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidFilename is returned when a name cannot be turned into a path.
var ErrInvalidFilename = errors.New("invalid filename")

const maxNameBytes = 255

var (
	slashRun = regexp.MustCompile(`/{2,}`)
	illegal  = regexp.MustCompile(`[/\\?<>:*|"]`)
	reserved = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])(\..*)?$`)
)

// Segments splits a path into its non-empty components.
func Segments(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

// Base returns the last segment of path, or "" for the root.
func Base(path string) string {
	segs := Segments(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Dir returns the parent path. Top-level paths and the root have "/" as parent.
func Dir(path string) string {
	segs := Segments(path)
	if len(segs) <= 1 {
		return RootPath
	}
	return "/" + strings.Join(segs[:len(segs)-1], "/")
}

// Join appends name to dir without sanitizing and collapses slash runs.
func Join(dir, name string) string {
	return slashRun.ReplaceAllString(dir+"/"+name, "/")
}

// IsWithin reports whether path equals dir or lies below it.
func IsWithin(path, dir string) bool {
	if dir == RootPath || path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+"/")
}

// Sanitize strips characters that are not allowed in a store name.
// The result may be empty.
func Sanitize(name string) string {
	s := norm.NFC.String(name)
	s = illegal.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if s == "." || s == ".." || reserved.MatchString(s) {
		return ""
	}
	s = strings.TrimRight(s, ". ")
	if len(s) > maxNameBytes {
		s = truncateUTF8(s, maxNameBytes)
	}
	return s
}

// AppendPath composes dir and a user-supplied name. A result that ends in
// "/" (nothing usable left after sanitizing) is ErrInvalidFilename.
func AppendPath(dir, name string) (string, error) {
	p := Join(dir, Sanitize(name))
	if strings.HasSuffix(p, "/") {
		return "", ErrInvalidFilename
	}
	return p, nil
}

func truncateUTF8(s string, n int) string {
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
