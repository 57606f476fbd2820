package extractors

import (
	"context"
	"fmt"
	"log"

	"github.com/dejo1307/verusreport/internal/facts"
)

// Options selects which declarations an extraction run keeps.
type Options struct {
	// IncludeVerificationConstructs keeps records whose kind is not the bare "fn".
	IncludeVerificationConstructs bool
	// IncludeMethods keeps trait and impl methods.
	IncludeMethods bool
	// OnFile, when set, is called once per enumerated file after it has been
	// processed. It may be called from several goroutines at once.
	OnFile func(path string)
	// OnTotal, when set, is called once with the number of enumerated files
	// before any of them is processed.
	OnTotal func(n int)
}

// DefaultOptions keeps everything.
func DefaultOptions() Options {
	return Options{IncludeVerificationConstructs: true, IncludeMethods: true}
}

// Keep reports whether a record passes the option filters.
func (o Options) Keep(r facts.FunctionRecord) bool {
	if !o.IncludeVerificationConstructs && !r.IsBareFn() {
		return false
	}
	if !o.IncludeMethods && r.Context != facts.ContextStandalone {
		return false
	}
	return true
}

// Extractor walks a source tree and builds a function inventory.
type Extractor interface {
	// Name returns the extractor identifier (e.g. "verus").
	Name() string
	// Detect returns true if this extractor supports the given root.
	Detect(root string) (bool, error)
	// Extract enumerates and parses the files under root.
	Extract(ctx context.Context, root string, opts Options) (*facts.Inventory, error)
}

// Registry holds registered extractors.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a new extractor registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an extractor to the registry.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// DetectAll returns extractors that support the given root, in
// registration order.
func (r *Registry) DetectAll(root string) ([]Extractor, error) {
	var matched []Extractor
	for _, e := range r.extractors {
		ok, err := e.Detect(root)
		if err != nil {
			return nil, fmt.Errorf("detecting %s: %w", e.Name(), err)
		}
		if ok {
			matched = append(matched, e)
		} else {
			log.Printf("[extractors] %s: not detected in %s", e.Name(), root)
		}
	}
	return matched, nil
}
