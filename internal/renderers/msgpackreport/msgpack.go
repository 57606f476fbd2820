// Package msgpackreport renders the correlated report as MessagePack.
package msgpackreport

import (
	"bytes"
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dejo1307/verusreport/internal/facts"
)

// Renderer writes report.msgpack.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

func (r *Renderer) Name() string {
	return "msgpack"
}

func (r *Renderer) Render(ctx context.Context, snapshot *facts.Snapshot) ([]facts.Artifact, error) {
	if snapshot.Report == nil {
		return nil, nil
	}
	data, err := Marshal(snapshot.Report)
	if err != nil {
		return nil, err
	}
	return []facts.Artifact{{Name: "report.msgpack", Content: data, Type: "application/msgpack"}}, nil
}

// Marshal encodes a report with sorted map keys so equal reports encode to
// equal bytes.
func Marshal(rep *facts.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(rep); err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a report written by Marshal.
func Unmarshal(data []byte) (*facts.Report, error) {
	var rep facts.Report
	if err := msgpack.NewDecoder(bytes.NewReader(data)).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &rep, nil
}
