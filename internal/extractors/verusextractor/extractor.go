package verusextractor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	sitter "github.com/tree-sitter/go-tree-sitter"
	rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	"golang.org/x/sync/errgroup"

	"github.com/dejo1307/verusreport/internal/extractors"
	"github.com/dejo1307/verusreport/internal/facts"
)

// Config controls file enumeration and macro recognition.
type Config struct {
	Extensions        []string // e.g. ".rs"
	Ignore            []string // glob patterns relative to the root
	Workers           int      // 0 means GOMAXPROCS
	WrapperMacros     []string // macros whose body is an item list
	ConditionalMacros []string // macros whose brace groups are alternative item lists
}

// DefaultConfig returns the configuration for Verus crates.
func DefaultConfig() Config {
	return Config{
		Extensions:        []string{".rs"},
		Ignore:            []string{"target/**", ".git/**"},
		WrapperMacros:     []string{"verus"},
		ConditionalMacros: []string{"cfg_if"},
	}
}

// VerusExtractor builds function inventories from Verus/Rust source trees.
type VerusExtractor struct {
	cfg          Config
	ignore       []glob.Glob
	lang         *sitter.Language
	wrappers     map[string]bool
	conditionals map[string]bool
}

// New creates a VerusExtractor. Ignore patterns are compiled up front.
func New(cfg Config) (*VerusExtractor, error) {
	e := &VerusExtractor{
		cfg:          cfg,
		lang:         sitter.NewLanguage(rust.Language()),
		wrappers:     toSet(cfg.WrapperMacros),
		conditionals: toSet(cfg.ConditionalMacros),
	}
	for _, pattern := range cfg.Ignore {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling ignore pattern %q: %w", pattern, err)
		}
		e.ignore = append(e.ignore, g)
	}
	return e, nil
}

func (e *VerusExtractor) Name() string {
	return "verus"
}

var errFound = errors.New("found")

// Detect returns true for a source file with a configured extension, or a
// directory holding a Cargo.toml or at least one such file.
func (e *VerusExtractor) Detect(root string) (bool, error) {
	info, err := os.Stat(root)
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return e.hasExtension(root), nil
	}
	if _, err := os.Stat(filepath.Join(root, "Cargo.toml")); err == nil {
		return true, nil
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && e.hasExtension(path) {
			return errFound
		}
		return nil
	})
	return errors.Is(err, errFound), nil
}

type sourceFile struct {
	abs  string // path used to open the file
	path string // path reported in records
}

type fileResult struct {
	records []facts.FunctionRecord
	skips   []facts.Skip
}

// Extract enumerates the source files under root, parses them in parallel
// and returns the ordered inventory. Unreadable or unparseable files are
// tallied as skips. Only a missing root or a cancelled context fail the run.
func (e *VerusExtractor) Extract(ctx context.Context, root string, opts extractors.Options) (*facts.Inventory, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}

	files, skips, err := e.enumerate(root, info)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", root, err)
	}
	log.Printf("[verus-extractor] found %d source files in %s", len(files), root)
	if opts.OnTotal != nil {
		opts.OnTotal(len(files))
	}

	// One slot per file; each goroutine writes only its own index.
	results := make([]fileResult, len(files))
	if len(files) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(e.workers(), len(files)))
		for i, f := range files {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = e.parseFile(f)
				if opts.OnFile != nil {
					opts.OnFile(f.path)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var records []facts.FunctionRecord
	for _, r := range results {
		skips = append(skips, r.skips...)
		for _, rec := range r.records {
			if opts.Keep(rec) {
				records = append(records, rec)
			}
		}
	}

	inv := facts.NewInventory(records, skips, len(files))
	log.Printf("[verus-extractor] emitted %d functions from %d files (%d skipped)",
		inv.Count(), len(files), len(inv.Skips()))
	return inv, nil
}

// enumerate lists the source files under root in path order. A single
// file root is returned as is.
func (e *VerusExtractor) enumerate(root string, info fs.FileInfo) ([]sourceFile, []facts.Skip, error) {
	if !info.IsDir() {
		return []sourceFile{{abs: root, path: filepath.ToSlash(root)}}, nil, nil
	}

	var files []sourceFile
	var skips []facts.Skip
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			skips = append(skips, facts.SkipFor(&facts.FileReadError{Path: e.display(root, path), Err: err}))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relPath != "." && e.isIgnored(filepath.ToSlash(relPath)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && e.hasExtension(path) {
			files = append(files, sourceFile{abs: path, path: e.display(root, path)})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	slices.SortFunc(files, func(a, b sourceFile) int { return strings.Compare(a.path, b.path) })
	return files, skips, nil
}

// display joins the root with the path relative to it, in slash form.
func (e *VerusExtractor) display(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(filepath.Join(root, rel))
}

// isIgnored checks a slash-separated relative path against the ignore
// globs. Directories also match their "/**" form.
func (e *VerusExtractor) isIgnored(relPath string) bool {
	for _, g := range e.ignore {
		if g.Match(relPath) || g.Match(relPath+"/**") {
			return true
		}
	}
	return false
}

func (e *VerusExtractor) hasExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, want := range e.cfg.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func (e *VerusExtractor) workers() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (e *VerusExtractor) parseFile(f sourceFile) fileResult {
	src, err := os.ReadFile(f.abs)
	if err != nil {
		return fileResult{skips: []facts.Skip{facts.SkipFor(&facts.FileReadError{Path: f.path, Err: err})}}
	}
	return e.parseSource(f.path, src)
}

// parseSource extracts every function of one file, before filtering.
func (e *VerusExtractor) parseSource(path string, src []byte) fileResult {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(e.lang); err != nil {
		return fileResult{skips: []facts.Skip{facts.SkipFor(&facts.ParseError{Path: path, Err: err})}}
	}

	toks, err := lex(parser, path, src)
	if err != nil {
		log.Printf("[verus-extractor] skipping %s: %v", path, err)
		return fileResult{skips: []facts.Skip{facts.SkipFor(err)}}
	}

	p := newItemParser(path, e.wrappers, e.conditionals)
	items := p.parseItems(toks)

	res := fileResult{records: walk(path, items, facts.ContextStandalone, nil)}
	for _, err := range p.errs {
		res.skips = append(res.skips, facts.SkipFor(err))
	}
	return res
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
