// Package block defines the block tree: the hierarchy of directories, files,
// classes and functions that Blockscope grades and explains.
// These types are the shared vocabulary across all modules.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Kind is the syntactic kind of a block. The set is closed.
type Kind int

const (
	KindDirectory Kind = iota
	KindFile
	KindClass
	KindFunction
)

var kindNames = [...]string{
	KindDirectory: "directory",
	KindFile:      "file",
	KindClass:     "class",
	KindFunction:  "function",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Priority orders kinds for batch scheduling at equal depth.
// Lower runs first: directory, then file, then class and function together.
func (k Kind) Priority() int {
	switch k {
	case KindDirectory:
		return 0
	case KindFile:
		return 1
	default:
		return 2
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown block kind %q", b)
}

// Grade is an ordered quality grade: Clean < Complex < Warning.
type Grade int

const (
	Clean Grade = iota
	Complex
	Warning
)

var gradeNames = [...]string{
	Clean:   "clean",
	Complex: "complex",
	Warning: "warning",
}

func (g Grade) String() string {
	if g < 0 || int(g) >= len(gradeNames) {
		return fmt.Sprintf("grade(%d)", int(g))
	}
	return gradeNames[g]
}

// MarshalText implements encoding.TextMarshaler.
func (g Grade) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Grade) UnmarshalText(b []byte) error {
	for i, name := range gradeNames {
		if name == string(b) {
			*g = Grade(i)
			return nil
		}
	}
	return fmt.Errorf("unknown grade %q", b)
}

// Worst returns the higher of two grades.
func Worst(a, b Grade) Grade {
	if a >= b {
		return a
	}
	return b
}

// Metrics are the static, language-specific facts a grade is derived from.
// A nil *Metrics means the kind carries no metrics of its own.
type Metrics struct {
	Complexity int `json:"complexity"` // cyclomatic complexity
	Lines      int `json:"lines"`
	Params     int `json:"params"`
}

// Fingerprint returns the content hash used to validate cached analyses.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
