// Package jsonreport renders the correlated report as indented JSON.
package jsonreport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dejo1307/verusreport/internal/facts"
)

// Renderer writes report.json.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

func (r *Renderer) Name() string {
	return "json"
}

// Render produces nothing for inventory-only snapshots.
func (r *Renderer) Render(ctx context.Context, snapshot *facts.Snapshot) ([]facts.Artifact, error) {
	if snapshot.Report == nil {
		return nil, nil
	}
	data, err := Marshal(snapshot.Report)
	if err != nil {
		return nil, err
	}
	return []facts.Artifact{{Name: "report.json", Content: data, Type: "application/json"}}, nil
}

// Marshal encodes a report deterministically: two-space indentation, map
// keys sorted, a trailing newline and no HTML escaping.
func Marshal(rep *facts.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return buf.Bytes(), nil
}
