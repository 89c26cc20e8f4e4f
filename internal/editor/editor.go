// Package editor writes replacement source back into files.
package editor

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// MaxReplacementBytes caps the size of replacement text accepted from clients.
const MaxReplacementBytes = 1 << 20

// ErrInvalidRange is returned when a line range does not fit the file.
var ErrInvalidRange = errors.New("invalid line range")

// Result describes a completed replacement.
type Result struct {
	LinesBefore int `json:"lines_before"`
	LinesAfter  int `json:"lines_after"`
}

// ReplaceLines replaces lines start through end (1-based, inclusive) of the
// file at path with text. The previous content is saved to path+".bak"
// first. Empty text deletes the range. An empty range, end = start-1, inserts
// text before line start.
func ReplaceLines(path string, start, end int, text string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("replace lines: %w", err)
	}
	if !info.Mode().IsRegular() {
		return Result{}, fmt.Errorf("replace lines: %s is not a regular file", path)
	}
	if start < 1 || end < start-1 {
		return Result{}, fmt.Errorf("%w: %d-%d", ErrInvalidRange, start, end)
	}

	orig, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	lines := splitLines(string(orig))
	if end > len(lines) {
		return Result{}, fmt.Errorf("%w: end line %d exceeds file length (%d lines)", ErrInvalidRange, end, len(lines))
	}

	replacement := splitLines(text)
	for i, l := range replacement {
		if !strings.HasSuffix(l, "\n") {
			replacement[i] = l + "\n"
		}
	}

	out := make([]string, 0, len(lines)-(end-start+1)+len(replacement))
	out = append(out, lines[:start-1]...)
	out = append(out, replacement...)
	out = append(out, lines[end:]...)

	if err := os.WriteFile(path+".bak", orig, info.Mode().Perm()); err != nil {
		return Result{}, fmt.Errorf("write backup: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(out, "")), info.Mode().Perm()); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", path, err)
	}
	return Result{LinesBefore: end - start + 1, LinesAfter: len(replacement)}, nil
}

// splitLines splits s into lines that keep their trailing newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
