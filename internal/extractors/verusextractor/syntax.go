package verusextractor

// Item is one node of the item-level syntax tree built from a file.
// The set of variants is closed; walk switches over all of them.
type Item interface {
	item()
}

// FnItem is a function declaration with or without a body.
type FnItem struct {
	Name       string
	Mode       string // "", "spec", "proof(axiom)", ...
	Const      bool
	Visibility string
	StartLine  int
	EndLine    int
	Nested     []Item // items declared inside the body
}

// TraitItem is a trait with its associated items.
type TraitItem struct {
	Name  string
	Line  int
	Items []Item
}

// ImplItem is an inherent or trait impl block.
type ImplItem struct {
	Line  int
	Items []Item
}

// ModItem is an inline module.
type ModItem struct {
	Name  string
	Line  int
	Items []Item
}

// WrapperItem is a verus! style block grouping item declarations.
type WrapperItem struct {
	Macro string
	Line  int
	Items []Item
}

// ConditionalItem is a cfg_if! style block with one item list per branch.
type ConditionalItem struct {
	Macro    string
	Line     int
	Branches [][]Item
}

func (*FnItem) item()          {}
func (*TraitItem) item()       {}
func (*ImplItem) item()        {}
func (*ModItem) item()         {}
func (*WrapperItem) item()     {}
func (*ConditionalItem) item() {}
