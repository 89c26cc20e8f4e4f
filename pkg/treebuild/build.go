// Package treebuild scans a directory and builds the block tree: directories,
// files, and the classes and functions tree-sitter finds inside them.
package treebuild

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blockscope/blockscope/pkg/block"
)

// RootID is the id of the scan root directory.
const RootID = "."

// DefaultMaxFileBytes skips files too large to explain usefully.
const DefaultMaxFileBytes = 1 << 20

// Options controls Build.
type Options struct {
	Languages    []string // empty means every recognized language
	MaxFileBytes int64
	Logger       *slog.Logger
}

// Build scans root and returns its block tree. Directory children are
// ordered directories first, then files, each alphabetically; blocks inside
// a file keep source order.
func Build(ctx context.Context, root string, opts Options) (*block.Tree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("build tree: %s is not a directory", abs)
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	files, err := Discover(abs, opts.Languages)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	b := &builder{
		ctx:  ctx,
		root: abs,
		opts: opts,
		log:  log,
		tree: block.NewTree(),
	}
	dirs := layout(files)
	if _, err := b.tree.Add("", block.Spec{ID: RootID, Name: filepath.Base(abs), Kind: block.KindDirectory, Path: RootID}); err != nil {
		return nil, err
	}
	if err := b.addDir(RootID, "", dirs); err != nil {
		return nil, err
	}
	log.Debug("tree built", "root", abs, "files", len(files), "blocks", b.tree.Len())
	return b.tree, nil
}

type builder struct {
	ctx  context.Context
	root string
	opts Options
	log  *slog.Logger
	tree *block.Tree
}

// dirEntry lists the direct children of one directory.
type dirEntry struct {
	subdirs []string
	files   []FileEntry
}

// layout groups files by directory, keyed by slash path ("" for the root).
func layout(files []FileEntry) map[string]*dirEntry {
	dirs := map[string]*dirEntry{"": {}}
	for _, f := range files {
		dir := path.Dir(f.Path)
		if dir == "." {
			dir = ""
		}
		ensureDir(dirs, dir)
		dirs[dir].files = append(dirs[dir].files, f)
	}
	for _, d := range dirs {
		sort.Strings(d.subdirs)
		sort.Slice(d.files, func(i, j int) bool { return path.Base(d.files[i].Path) < path.Base(d.files[j].Path) })
	}
	return dirs
}

func ensureDir(dirs map[string]*dirEntry, dir string) {
	if _, ok := dirs[dir]; ok {
		return
	}
	dirs[dir] = &dirEntry{}
	parent := path.Dir(dir)
	if parent == "." {
		parent = ""
	}
	ensureDir(dirs, parent)
	dirs[parent].subdirs = append(dirs[parent].subdirs, dir)
}

func (b *builder) addDir(id, dir string, dirs map[string]*dirEntry) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	entry := dirs[dir]
	for _, sub := range entry.subdirs {
		if _, err := b.tree.Add(id, block.Spec{ID: sub, Name: path.Base(sub), Kind: block.KindDirectory, Path: sub}); err != nil {
			return err
		}
		if err := b.addDir(sub, sub, dirs); err != nil {
			return err
		}
	}
	for _, f := range entry.files {
		if err := b.addFile(id, f); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) addFile(parentID string, f FileEntry) error {
	full := filepath.Join(b.root, filepath.FromSlash(f.Path))
	info, err := os.Stat(full)
	if err != nil {
		b.log.Warn("skipping unreadable file", "path", f.Path, "error", err)
		return nil
	}
	if info.Size() > b.opts.MaxFileBytes {
		b.log.Warn("skipping large file", "path", f.Path, "bytes", info.Size())
		return nil
	}
	src, err := os.ReadFile(full)
	if err != nil {
		b.log.Warn("skipping unreadable file", "path", f.Path, "error", err)
		return nil
	}

	text := string(src)
	if _, err := b.tree.Add(parentID, block.Spec{
		ID:        f.Path,
		Name:      path.Base(f.Path),
		Kind:      block.KindFile,
		Language:  f.Language,
		Path:      f.Path,
		StartLine: 1,
		EndLine:   max(lineCount(text), 1),
		Text:      text,
	}); err != nil {
		return err
	}

	syms, err := parseSymbols(b.ctx, f.Language, src)
	if err != nil {
		b.log.Warn("parse failed; keeping file without blocks", "path", f.Path, "error", err)
		return nil
	}
	return b.addSymbols(f, f.Path, syms)
}

func (b *builder) addSymbols(f FileEntry, parentID string, syms []symbol) error {
	for _, s := range syms {
		id := b.uniqueID(parentID + "::" + s.name)
		if _, err := b.tree.Add(parentID, block.Spec{
			ID:        id,
			Name:      s.name,
			Kind:      s.kind,
			Language:  f.Language,
			Path:      f.Path,
			StartLine: s.startLine,
			EndLine:   s.endLine,
			Text:      s.text,
			Metrics:   s.metrics,
		}); err != nil {
			return err
		}
		if err := b.addSymbols(f, id, s.children); err != nil {
			return err
		}
	}
	return nil
}

// uniqueID suffixes #2, #3, ... when a name repeats in the same scope.
func (b *builder) uniqueID(id string) string {
	if _, taken := b.tree.Node(id); !taken {
		return id
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s#%d", id, i)
		if _, taken := b.tree.Node(candidate); !taken {
			return candidate
		}
	}
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(text, "\n"), "\n") + 1
}
