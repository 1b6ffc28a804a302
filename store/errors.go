package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voidstore/storesync/tree"
)

// Result codes reported by store operations.
var (
	ErrCantOpenFile      = errors.New("cant open file")
	ErrCantWriteToFile   = errors.New("cant write to file")
	ErrFileTooLarge      = errors.New("file too large")
	ErrNoSuchFile        = errors.New("no such file")
	ErrPartCorrupted     = errors.New("part corrupted")
	ErrWrongChecksum     = errors.New("wrong checksum")
	ErrFileAlreadyExists = errors.New("file already exists")
	ErrPermission        = errors.New("permission denied")
	ErrInvalidPath       = errors.New("invalid path")
)

func opErr(op, path string, err error) error { return Wrap(op, path, err) }

// OpError records a failed store operation.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string { return e.Op + " " + e.Path + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

// Wrap returns err as an *OpError, or nil when err is nil.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Path: path, Err: err}
}

var messages = []struct {
	err error
	msg string
}{
	{ErrCantOpenFile, "Could not open file. Check file permissions."},
	{ErrCantWriteToFile, "Could not write to file. Check file permissions."},
	{ErrFileTooLarge, "Selected file could not be processed: too big."},
	{ErrNoSuchFile, "Selected file does not exist."},
	{ErrPartCorrupted, "File part appears to be corrupted."},
	{ErrWrongChecksum, "Wrong file checksum (i.e.: not the expected content)."},
	{ErrFileAlreadyExists, "File already exists."},
	{ErrPermission, "Permission denied."},
	{ErrInvalidPath, "Invalid path."},
	{tree.ErrInvalidFilename, "Invalid filename."},
}

// Message turns an error into a sentence suitable for the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Operation cancelled."
	}
	return "Operation failed: " + err.Error()
}

// CleanPath validates an absolute store path and returns its canonical
// form: single slashes, no trailing slash except for the root.
func CleanPath(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%q: %w", path, ErrInvalidPath)
	}
	segs := tree.Segments(path)
	for _, s := range segs {
		if s == "." || s == ".." {
			return "", fmt.Errorf("%q: %w", path, ErrInvalidPath)
		}
	}
	if len(segs) == 0 {
		return tree.RootPath, nil
	}
	return "/" + strings.Join(segs, "/"), nil
}
