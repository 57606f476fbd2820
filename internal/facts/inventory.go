package facts

import (
	"bufio"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
)

// SkipReason classifies why part of the source tree was left out of an inventory.
type SkipReason string

const (
	SkipReadError  SkipReason = "read_error"
	SkipParseError SkipReason = "parse_error"
	SkipDuplicate  SkipReason = "duplicate_declaration"
)

// Skip records one anomaly met while building an inventory. Line is 0 when
// the whole file was skipped.
type Skip struct {
	File    string     `json:"file" msgpack:"file"`
	Line    int        `json:"line" msgpack:"line"`
	Reason  SkipReason `json:"reason" msgpack:"reason"`
	Message string     `json:"message" msgpack:"message"`
}

// Inventory is the ordered, indexed set of function records from one
// extraction run. It is never mutated after construction.
type Inventory struct {
	records []FunctionRecord

	// Indexes for fast lookups
	byFile map[string][]int // file -> indices into records
	byName map[string][]int // name -> indices into records

	files        []string // files that contributed at least one record, sorted
	skips        []Skip
	filesScanned int
}

// NewInventory orders records by (file, start line, name, end line), drops
// repeated identity keys (tallied as duplicate_declaration skips) and builds
// the indexes.
func NewInventory(records []FunctionRecord, skips []Skip, filesScanned int) *Inventory {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, CompareRecords)

	inv := &Inventory{
		byFile:       make(map[string][]int),
		byName:       make(map[string][]int),
		skips:        slices.Clone(skips),
		filesScanned: filesScanned,
	}

	seen := make(map[FunctionKey]struct{}, len(sorted))
	for _, r := range sorted {
		if _, dup := seen[r.Key()]; dup {
			inv.skips = append(inv.skips, Skip{
				File:    r.File,
				Line:    r.StartLine,
				Reason:  SkipDuplicate,
				Message: fmt.Sprintf("duplicate declaration of %s", r.Name),
			})
			continue
		}
		seen[r.Key()] = struct{}{}

		idx := len(inv.records)
		inv.records = append(inv.records, r)
		if _, ok := inv.byFile[r.File]; !ok {
			inv.files = append(inv.files, r.File)
		}
		inv.byFile[r.File] = append(inv.byFile[r.File], idx)
		inv.byName[r.Name] = append(inv.byName[r.Name], idx)
	}

	slices.SortFunc(inv.skips, func(a, b Skip) int {
		return cmp.Or(
			cmp.Compare(a.File, b.File),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Reason, b.Reason),
			cmp.Compare(a.Message, b.Message),
		)
	})
	return inv
}

// CompareRecords is the canonical inventory ordering.
func CompareRecords(a, b FunctionRecord) int {
	return cmp.Or(
		cmp.Compare(a.File, b.File),
		cmp.Compare(a.StartLine, b.StartLine),
		cmp.Compare(a.Name, b.Name),
		cmp.Compare(a.EndLine, b.EndLine),
	)
}

// All returns all records in inventory order.
func (inv *Inventory) All() []FunctionRecord {
	return slices.Clone(inv.records)
}

// Count returns the number of records.
func (inv *Inventory) Count() int {
	return len(inv.records)
}

// ByFile returns the records of one file in ascending start-line order.
func (inv *Inventory) ByFile(file string) []FunctionRecord {
	return inv.collectByIndex(inv.byFile[file])
}

// ByName returns all records with the given exact name, across files.
func (inv *Inventory) ByName(name string) []FunctionRecord {
	return inv.collectByIndex(inv.byName[name])
}

// Files returns the sorted list of files holding at least one record.
func (inv *Inventory) Files() []string {
	return slices.Clone(inv.files)
}

// Grouped returns the per-file grouping of the inventory.
func (inv *Inventory) Grouped() map[string][]FunctionRecord {
	out := make(map[string][]FunctionRecord, len(inv.files))
	for _, f := range inv.files {
		out[f] = inv.ByFile(f)
	}
	return out
}

// Skips returns the anomalies recorded while building the inventory.
func (inv *Inventory) Skips() []Skip {
	return slices.Clone(inv.skips)
}

// SkipCount returns the number of skips with the given reason.
func (inv *Inventory) SkipCount(reason SkipReason) int {
	n := 0
	for _, s := range inv.skips {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

// FilesScanned returns how many source files were enumerated.
func (inv *Inventory) FilesScanned() int {
	return inv.filesScanned
}

// Filter returns a new inventory holding only the records keep accepts.
// Skips and the scanned-file count carry over unchanged.
func (inv *Inventory) Filter(keep func(FunctionRecord) bool) *Inventory {
	var kept []FunctionRecord
	for _, r := range inv.records {
		if keep(r) {
			kept = append(kept, r)
		}
	}
	return NewInventory(kept, inv.skips, inv.filesScanned)
}

func (inv *Inventory) collectByIndex(indices []int) []FunctionRecord {
	result := make([]FunctionRecord, 0, len(indices))
	for _, idx := range indices {
		if idx < len(inv.records) {
			result = append(result, inv.records[idx])
		}
	}
	return result
}

// jsonlLine is one line of the persisted inventory. Exactly one of the three
// shapes is present: a header with the scanned-file count, a skip, or a record.
type jsonlLine struct {
	FilesScanned *int  `json:"files_scanned,omitempty"`
	Skip         *Skip `json:"skip,omitempty"`
	FunctionRecord
}

// WriteJSONL writes the inventory as JSONL: a header line, one line per
// skip, then one line per record in inventory order.
func (inv *Inventory) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(struct {
		FilesScanned int `json:"files_scanned"`
	}{inv.filesScanned}); err != nil {
		return fmt.Errorf("encoding inventory header: %w", err)
	}
	for _, s := range inv.skips {
		if err := enc.Encode(struct {
			Skip Skip `json:"skip"`
		}{s}); err != nil {
			return fmt.Errorf("encoding skip for %q: %w", s.File, err)
		}
	}
	for _, r := range inv.records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding function %q: %w", r.Name, err)
		}
	}
	return nil
}

// WriteJSONLFile writes the inventory as JSONL to the given file path.
func (inv *Inventory) WriteJSONLFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := inv.WriteJSONL(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadJSONL reads an inventory written by WriteJSONL. Plain record lines
// without a header are accepted too, so a functions_jsonl listing can be
// loaded back.
func ReadJSONL(r io.Reader) (*Inventory, error) {
	var (
		records      []FunctionRecord
		skips        []Skip
		filesScanned = -1
	)

	scanner := bufio.NewScanner(r)
	// Allow large lines
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var l jsonlLine
		if err := json.Unmarshal(line, &l); err != nil {
			return nil, fmt.Errorf("decoding inventory line %d: %w", lineNo, err)
		}
		switch {
		case l.FilesScanned != nil:
			filesScanned = *l.FilesScanned
		case l.Skip != nil:
			skips = append(skips, *l.Skip)
		case l.Name != "":
			records = append(records, l.FunctionRecord)
		default:
			return nil, fmt.Errorf("decoding inventory line %d: no function name", lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if filesScanned < 0 {
		files := make(map[string]struct{})
		for _, r := range records {
			files[r.File] = struct{}{}
		}
		filesScanned = len(files)
	}
	return NewInventory(records, skips, filesScanned), nil
}

// ReadJSONLFile reads an inventory from a JSONL file.
func ReadJSONLFile(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return ReadJSONL(f)
}
