package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dejo1307/verusreport/internal/config"
	"github.com/dejo1307/verusreport/internal/correlate"
	"github.com/dejo1307/verusreport/internal/extractors"
	"github.com/dejo1307/verusreport/internal/facts"
	"github.com/dejo1307/verusreport/internal/renderers"
	"github.com/dejo1307/verusreport/internal/renderers/jsonreport"
	"github.com/dejo1307/verusreport/internal/transcript"
)

// InventoryArtifact is the name under which the run's inventory is written.
const InventoryArtifact = "inventory.jsonl"

// Engine orchestrates the pipeline: extract -> parse transcript -> correlate -> render.
// Runs share no mutable state; only the last snapshot is kept, behind a mutex.
type Engine struct {
	cfg        *config.Config
	extractors *extractors.Registry
	renderers  *renderers.Registry
	parser     *transcript.Parser

	mu       sync.RWMutex
	snapshot *facts.Snapshot
}

// New creates a new Engine with the given config.
// Extractors and renderers must be registered after creation.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	parser, err := transcript.New(cfg.ParserConfig())
	if err != nil {
		return nil, fmt.Errorf("creating transcript parser: %w", err)
	}
	return &Engine{
		cfg:        cfg,
		extractors: extractors.NewRegistry(),
		renderers:  renderers.NewRegistry(),
		parser:     parser,
	}, nil
}

// RegisterExtractor adds an extractor to the engine.
func (e *Engine) RegisterExtractor(ext extractors.Extractor) {
	e.extractors.Register(ext)
}

// RegisterRenderer adds a renderer to the engine.
func (e *Engine) RegisterRenderer(rnd renderers.Renderer) {
	e.renderers.Register(rnd)
}

// Snapshot returns the last generated snapshot, or nil.
func (e *Engine) Snapshot() *facts.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Config returns the engine config.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Request describes one pipeline run.
type Request struct {
	// Root is the source file or directory to extract from.
	Root string
	// Inventory, when set, is used instead of extracting from Root.
	Inventory *facts.Inventory
	// Transcript, when nil, makes the run inventory-only: no report.
	Transcript *facts.Transcript
	// Options filters the inventory.
	Options extractors.Options
	// Correlate controls correlation.
	Correlate correlate.Options
	// Renderers overrides the configured renderer list when non-empty.
	Renderers []string
}

// Run executes one pipeline run and records its snapshot as the latest.
func (e *Engine) Run(ctx context.Context, req Request) (*facts.Snapshot, error) {
	start := time.Now()
	r := &run{}

	if req.Root == "" {
		req.Root = e.cfg.Root
	}

	// 1. Inventory
	if err := r.advance(Extracting); err != nil {
		return nil, err
	}
	inv, extractorName, err := e.inventory(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}
	log.Printf("[engine] inventory holds %d functions in %d files (%d skipped)",
		inv.Count(), len(inv.Files()), len(inv.Skips()))

	snapshot := &facts.Snapshot{
		Meta: facts.SnapshotMeta{
			Root:      req.Root,
			Extractor: extractorName,
			Renderers: []string{},
		},
		Inventory: inv,
	}

	// 2. Transcript and correlation
	if req.Transcript != nil {
		if err := r.advance(ParsingOutput); err != nil {
			return nil, err
		}
		diag := e.parser.Parse(*req.Transcript)
		log.Printf("[engine] transcript: %d errors, %d warnings, %d outcomes, status %s",
			len(diag.Errors), len(diag.Warnings), len(diag.Outcomes), diag.Status)
		for _, a := range transcript.Anomalies(diag) {
			log.Printf("[engine] transcript anomaly: %v", a)
		}

		if err := r.advance(Correlating); err != nil {
			return nil, err
		}
		snapshot.Diagnostics = diag
		snapshot.Report = correlate.Correlate(inv, diag, req.Correlate)
		log.Printf("[engine] report status %s: %d verified, %d failed of %d functions",
			snapshot.Report.Status, snapshot.Report.Summary.VerifiedFunctions,
			snapshot.Report.Summary.FailedFunctions, snapshot.Report.Summary.TotalFunctions)
	}

	// 3. Render
	if err := r.advance(Emitted); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snapshot.Meta.Renderers = e.runRenderers(ctx, snapshot, req.Renderers)

	duration := time.Since(start)
	snapshot.Meta.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	snapshot.Meta.Duration = duration.String()
	log.Printf("[engine] produced %d artifacts using %d renderers in %s",
		len(snapshot.Artifacts), len(snapshot.Meta.Renderers), duration)

	e.mu.Lock()
	e.snapshot = snapshot
	e.mu.Unlock()

	if err := r.advance(Idle); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// inventory returns the precomputed inventory of the request, filtered by
// its options, or extracts one with the first extractor that detects the root.
func (e *Engine) inventory(ctx context.Context, req Request) (*facts.Inventory, string, error) {
	if req.Inventory != nil {
		log.Printf("[engine] using precomputed inventory (%d functions)", req.Inventory.Count())
		return req.Inventory.Filter(req.Options.Keep), "precomputed", nil
	}

	matched, err := e.extractors.DetectAll(req.Root)
	if err != nil {
		return nil, "", err
	}
	if len(matched) > 0 {
		ext := matched[0]
		log.Printf("[engine] running extractor: %s", ext.Name())
		inv, err := ext.Extract(ctx, req.Root, req.Options)
		if err != nil {
			return nil, "", err
		}
		return inv, ext.Name(), nil
	}

	if _, err := os.Stat(req.Root); err != nil {
		return nil, "", fmt.Errorf("stat root: %w", err)
	}
	log.Printf("[engine] no extractor detected sources in %s", req.Root)
	return facts.NewInventory(nil, nil, 0), "", nil
}

// runRenderers runs all enabled renderers. A failing renderer is logged and
// skipped.
func (e *Engine) runRenderers(ctx context.Context, snapshot *facts.Snapshot, enabled []string) []string {
	usedNames := []string{}

	for _, rnd := range e.renderers.All() {
		if !e.rendererEnabled(rnd.Name(), enabled) {
			continue
		}

		log.Printf("[engine] running renderer: %s", rnd.Name())
		artifacts, err := rnd.Render(ctx, snapshot)
		if err != nil {
			log.Printf("[engine] renderer %s error: %v", rnd.Name(), err)
			continue
		}

		snapshot.Artifacts = append(snapshot.Artifacts, artifacts...)
		usedNames = append(usedNames, rnd.Name())
	}

	return usedNames
}

func (e *Engine) rendererEnabled(name string, override []string) bool {
	if len(override) == 0 {
		return e.cfg.IsRendererEnabled(name)
	}
	for _, n := range override {
		if n == name {
			return true
		}
	}
	return false
}

// WriteArtifacts writes all snapshot artifacts to dir, plus the inventory
// as inventory.jsonl and the run metadata as snapshot.meta.json.
func (e *Engine) WriteArtifacts(dir string) error {
	snapshot := e.Snapshot()
	if snapshot == nil {
		return fmt.Errorf("no snapshot generated")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	for _, a := range snapshot.Artifacts {
		path := filepath.Join(dir, a.Name)
		if err := os.WriteFile(path, a.Content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", a.Name, err)
		}
		log.Printf("[engine] wrote %s (%d bytes)", path, len(a.Content))
	}

	invPath := filepath.Join(dir, InventoryArtifact)
	if err := snapshot.Inventory.WriteJSONLFile(invPath); err != nil {
		return fmt.Errorf("writing %s: %w", InventoryArtifact, err)
	}
	log.Printf("[engine] wrote %s", invPath)

	metaJSON, err := json.MarshalIndent(snapshot.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	metaPath := filepath.Join(dir, "snapshot.meta.json")
	if err := os.WriteFile(metaPath, metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing snapshot.meta.json: %w", err)
	}
	log.Printf("[engine] wrote %s (%d bytes)", metaPath, len(metaJSON))

	return nil
}

// GetArtifact returns the content of a named artifact of the last snapshot.
// inventory.jsonl, report.json and snapshot.meta.json are always available
// (report.json only when the run had a transcript).
func (e *Engine) GetArtifact(name string) ([]byte, error) {
	snapshot := e.Snapshot()
	if snapshot == nil {
		return nil, fmt.Errorf("no snapshot generated")
	}

	for _, a := range snapshot.Artifacts {
		if a.Name == name {
			return a.Content, nil
		}
	}

	switch name {
	case InventoryArtifact:
		var buf bytes.Buffer
		if err := snapshot.Inventory.WriteJSONL(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "report.json":
		if snapshot.Report == nil {
			return nil, fmt.Errorf("last run had no transcript; no report available")
		}
		return jsonreport.Marshal(snapshot.Report)
	case "snapshot.meta.json":
		return json.MarshalIndent(snapshot.Meta, "", "  ")
	default:
		return nil, fmt.Errorf("artifact %q not found", name)
	}
}
