// Package listing renders the function inventory in the listing formats:
// plain names, detailed lines, a JSON document and JSONL.
package listing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dejo1307/verusreport/internal/facts"
)

// Format selects a listing layout.
type Format string

const (
	FormatText     Format = "text"
	FormatDetailed Format = "detailed"
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatDetailed, FormatJSON, FormatJSONL}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown listing format %q (want text, detailed, json or jsonl)", s)
}

// Document is the functions_json layout.
type Document struct {
	Functions       []facts.FunctionRecord            `json:"functions"`
	FunctionsByFile map[string][]facts.FunctionRecord `json:"functions_by_file"`
	Summary         DocumentSummary                   `json:"summary"`
}

type DocumentSummary struct {
	TotalFunctions int `json:"total_functions"`
	TotalFiles     int `json:"total_files"`
}

// Write renders inv to w in the given format.
func Write(w io.Writer, inv *facts.Inventory, format Format) error {
	bw := bufio.NewWriter(w)
	var err error
	switch format {
	case FormatText:
		for _, r := range inv.All() {
			if _, err = fmt.Fprintln(bw, r.Name); err != nil {
				break
			}
		}
	case FormatDetailed:
		for _, r := range inv.All() {
			if _, err = fmt.Fprintln(bw, r.Detailed()); err != nil {
				break
			}
		}
		if err == nil {
			_, err = fmt.Fprintf(bw, "\nSummary: %d functions in %d files\n", inv.Count(), len(inv.Files()))
		}
	case FormatJSON:
		doc := Document{
			Functions:       inv.All(),
			FunctionsByFile: inv.Grouped(),
			Summary:         DocumentSummary{TotalFunctions: inv.Count(), TotalFiles: len(inv.Files())},
		}
		if doc.Functions == nil {
			doc.Functions = []facts.FunctionRecord{}
		}
		enc := json.NewEncoder(bw)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	case FormatJSONL:
		enc := json.NewEncoder(bw)
		for _, r := range inv.All() {
			if err = enc.Encode(r); err != nil {
				break
			}
		}
	default:
		return fmt.Errorf("unknown listing format %q", format)
	}
	if err != nil {
		return fmt.Errorf("writing %s listing: %w", format, err)
	}
	return bw.Flush()
}

// Renderer produces one listing artifact per snapshot.
type Renderer struct {
	format Format
}

// New creates a listing renderer for format.
func New(format Format) *Renderer {
	return &Renderer{format: format}
}

// All returns a renderer for every format.
func All() []*Renderer {
	out := make([]*Renderer, 0, len(Formats))
	for _, f := range Formats {
		out = append(out, New(f))
	}
	return out
}

func (r *Renderer) Name() string {
	return "functions_" + string(r.format)
}

func (r *Renderer) Render(ctx context.Context, snapshot *facts.Snapshot) ([]facts.Artifact, error) {
	if snapshot.Inventory == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := Write(&buf, snapshot.Inventory, r.format); err != nil {
		return nil, err
	}
	return []facts.Artifact{{Name: r.artifactName(), Content: buf.Bytes(), Type: r.contentType()}}, nil
}

func (r *Renderer) artifactName() string {
	switch r.format {
	case FormatJSON:
		return "functions.json"
	case FormatJSONL:
		return "functions.jsonl"
	case FormatDetailed:
		return "functions_detailed.txt"
	default:
		return "functions.txt"
	}
}

func (r *Renderer) contentType() string {
	switch r.format {
	case FormatJSON:
		return "application/json"
	case FormatJSONL:
		return "application/x-ndjson"
	default:
		return "text/plain"
	}
}
