package verusextractor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dejo1307/verusreport/internal/facts"
)

// Item-level keywords that may precede fn, trait or impl.
var modifiers = map[string]bool{
	"broadcast": true,
	"uninterp":  true,
	"default":   true,
	"async":     true,
	"unsafe":    true,
	"auto":      true,
}

var modes = map[string]bool{
	facts.ModeSpec:  true,
	facts.ModeProof: true,
	facts.ModeExec:  true,
}

// header is everything between the attributes and the item keyword.
type header struct {
	start      int // index of the first header token
	visibility string
	mode       string
	isConst    bool
}

// itemParser turns token trees into items. Malformed declarations are
// collected in errs and parsing continues.
type itemParser struct {
	path         string
	wrappers     map[string]bool
	conditionals map[string]bool
	errs         []error
}

func newItemParser(path string, wrappers, conditionals map[string]bool) *itemParser {
	return &itemParser{path: path, wrappers: wrappers, conditionals: conditionals}
}

func (p *itemParser) fail(line int, msg string) {
	p.errs = append(p.errs, &facts.ParseError{Path: p.path, Line: line, Err: errors.New(msg)})
}

// parseItems parses a list of item declarations. Anything that is not a
// function, trait, impl, module or recognized macro block is skipped.
func (p *itemParser) parseItems(toks []token) []Item {
	var items []Item
	for i := 0; i < len(toks); {
		item, next, ok := p.parseItem(toks, i, false)
		if !ok {
			next = skipItem(toks, next)
		}
		if item != nil {
			items = append(items, item)
		}
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return items
}

// parseNested finds items declared inside a function body. Items are only
// recognized at statement boundaries; everything else is scanned for
// nested blocks.
func (p *itemParser) parseNested(toks []token, boundary bool) []Item {
	var items []Item
	for i := 0; i < len(toks); {
		if boundary {
			if item, next, ok := p.parseItem(toks, i, true); ok && next > i {
				if item != nil {
					items = append(items, item)
				}
				i = next
				continue
			}
		}
		t := toks[i]
		switch {
		case t.isGroup("{"):
			items = append(items, p.parseNested(t.children, true)...)
			boundary = true
		case t.kind == tokGroup:
			items = append(items, p.parseNested(t.children, false)...)
			boundary = false
		default:
			boundary = t.is(";")
		}
		i++
	}
	return items
}

// parseItem parses one item starting at toks[i]. It returns the item (nil
// when the declaration is skipped), the index after it, and whether a
// declaration was recognized. When it was not, the index points at the
// token that follows the header.
// In lenient mode nothing is reported as malformed.
func (p *itemParser) parseItem(toks []token, i int, lenient bool) (Item, int, bool) {
	h, j := parseHeader(toks, i)
	if j >= len(toks) {
		return nil, j, !lenient && j > i
	}

	if name, g, ok := macroCall(toks, j); ok {
		body := toks[g]
		end := g + 1
		if end < len(toks) && toks[end].is(";") {
			end++
		}
		switch {
		case p.wrappers[name]:
			return &WrapperItem{Macro: name, Line: toks[j].line, Items: p.parseItems(body.children)}, end, true
		case p.conditionals[name]:
			return &ConditionalItem{Macro: name, Line: toks[j].line, Branches: p.parseBranches(body.children)}, end, true
		default:
			return nil, end, true
		}
	}

	switch t := toks[j]; {
	case t.is("fn"):
		return p.parseFn(toks, h, j, lenient)
	case t.is("trait"), t.is("impl"), t.is("mod"):
		return p.parseContainer(toks, j, lenient)
	}
	return nil, j, false
}

func (p *itemParser) parseFn(toks []token, h header, j int, lenient bool) (Item, int, bool) {
	fnTok := toks[j]
	if j+1 >= len(toks) || toks[j+1].kind != tokIdent {
		if lenient {
			return nil, j, false
		}
		p.fail(fnTok.line, "fn without a name")
		return nil, j + 1, true
	}

	fn := &FnItem{
		Name:       toks[j+1].text,
		Mode:       h.mode,
		Const:      h.isConst,
		Visibility: h.visibility,
		StartLine:  toks[h.start].line,
	}
	for k := j + 2; k < len(toks); k++ {
		switch t := toks[k]; {
		case t.isGroup("{"):
			fn.EndLine = t.endLine
			fn.Nested = p.parseNested(t.children, true)
			return fn, k + 1, true
		case t.is(";"):
			fn.EndLine = t.line
			return fn, k + 1, true
		}
	}

	if lenient {
		return nil, j, false
	}
	p.fail(fnTok.line, fmt.Sprintf("fn %s has neither a body nor a terminating ';'", fn.Name))
	return nil, len(toks), true
}

// parseContainer parses trait, impl and mod items. Declarations without a
// brace body (`mod name;`, trait aliases) are skipped.
func (p *itemParser) parseContainer(toks []token, j int, lenient bool) (Item, int, bool) {
	kw := toks[j]
	name := ""
	if j+1 < len(toks) && toks[j+1].kind == tokIdent {
		name = toks[j+1].text
	}
	for k := j + 1; k < len(toks); k++ {
		switch t := toks[k]; {
		case t.isGroup("{"):
			items := p.parseItems(t.children)
			switch kw.text {
			case "trait":
				return &TraitItem{Name: name, Line: kw.line, Items: items}, k + 1, true
			case "impl":
				return &ImplItem{Line: kw.line, Items: items}, k + 1, true
			default:
				return &ModItem{Name: name, Line: kw.line, Items: items}, k + 1, true
			}
		case t.is(";"):
			return nil, k + 1, true
		}
	}

	if lenient {
		return nil, j, false
	}
	p.fail(kw.line, kw.text+" without a body")
	return nil, len(toks), true
}

// parseBranches collects one item list per brace group of a conditional
// block, e.g. `if #[cfg(a)] { .. } else if #[cfg(b)] { .. } else { .. }`.
func (p *itemParser) parseBranches(toks []token) [][]Item {
	var branches [][]Item
	for _, t := range toks {
		if t.isGroup("{") {
			branches = append(branches, p.parseItems(t.children))
		}
	}
	return branches
}

// parseHeader skips attributes and reads visibility, modifiers, mode and
// constness. It returns the index of the first token it did not consume.
func parseHeader(toks []token, i int) (header, int) {
	for i < len(toks) && toks[i].is("#") {
		j := i + 1
		if j < len(toks) && toks[j].is("!") {
			j++
		}
		if j < len(toks) && toks[j].isGroup("[") {
			i = j + 1
			continue
		}
		break
	}

	h := header{start: i, visibility: facts.VisibilityPrivate}
	if i < len(toks) && toks[i].is("pub") {
		h.visibility = facts.VisibilityPublic
		i++
		if i < len(toks) && toks[i].isGroup("(") {
			h.visibility = restrictedVisibility(toks[i].children)
			i++
		}
	}

	for i < len(toks) {
		t := toks[i]
		switch {
		case t.is("extern"):
			i++
			if i < len(toks) && toks[i].kind == tokLiteral {
				i++
			}
		case t.is("open"), t.is("closed"):
			// open(crate) spec fn
			i++
			if i < len(toks) && toks[i].isGroup("(") {
				i++
			}
		case t.kind == tokIdent && modifiers[t.text]:
			i++
		case t.kind == tokIdent && modes[t.text] && h.mode == "":
			h.mode = t.text
			i++
			if i < len(toks) && toks[i].isGroup("(") {
				h.mode += "(" + tokenText(toks[i].children) + ")"
				i++
			}
		case t.is("const") && isConstFn(toks, i+1):
			h.isConst = true
			i++
		default:
			return h, i
		}
	}
	return h, i
}

func restrictedVisibility(inner []token) string {
	if len(inner) == 0 {
		return facts.VisibilityRestricted
	}
	switch inner[0].text {
	case "crate":
		return facts.VisibilityCrate
	case "super":
		return facts.VisibilitySuper
	case "self":
		return facts.VisibilitySelf
	default:
		return facts.VisibilityRestricted
	}
}

// isConstFn reports whether the tokens after `const` continue a function
// header rather than a const item.
func isConstFn(toks []token, i int) bool {
	for ; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.is("fn"):
			return true
		case t.is("unsafe"), t.is("async"), t.is("extern"), t.kind == tokLiteral:
		default:
			return false
		}
	}
	return false
}

// macroCall matches `path::to::name ! (group)` at toks[j] and returns the
// final path segment and the index of the group.
func macroCall(toks []token, j int) (string, int, bool) {
	k := j
	if k < len(toks) && toks[k].is("::") {
		k++
	}
	for k+2 < len(toks) && toks[k].kind == tokIdent && toks[k+1].is("::") {
		k += 2
	}
	if k+2 < len(toks) && toks[k].kind == tokIdent && toks[k+1].is("!") && toks[k+2].kind == tokGroup {
		return toks[k].text, k + 2, true
	}
	return "", 0, false
}

// skipItem skips a declaration that carries no functions: up to and
// including the next `;`, or up to a brace body and an optional `;`.
func skipItem(toks []token, i int) int {
	for k := i; k < len(toks); k++ {
		switch t := toks[k]; {
		case t.is(";"):
			return k + 1
		case t.isGroup("{"):
			if k+1 < len(toks) && toks[k+1].is(";") {
				return k + 2
			}
			return k + 1
		}
	}
	return len(toks)
}

func tokenText(toks []token) string {
	var b strings.Builder
	for _, t := range toks {
		if t.kind == tokGroup {
			b.WriteString(t.text)
			b.WriteString(tokenText(t.children))
			b.WriteString(closers[t.text])
			continue
		}
		b.WriteString(t.text)
	}
	return b.String()
}
