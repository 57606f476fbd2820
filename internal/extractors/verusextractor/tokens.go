package verusextractor

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"fortio.org/safecast"
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dejo1307/verusreport/internal/facts"
)

type tokenKind int

const (
	tokIdent tokenKind = iota // identifiers and keywords
	tokPunct
	tokLiteral
	tokGroup // a delimited token tree; text holds the opening delimiter
)

// token is one lexical token, or a bracketed group of tokens.
type token struct {
	kind     tokenKind
	text     string
	line     int // 1-based line of the token (or opening delimiter)
	endLine  int // 1-based line of the token end (or closing delimiter)
	children []token
}

func (t token) is(text string) bool {
	return t.kind != tokGroup && t.kind != tokLiteral && t.text == text
}

func (t token) isGroup(open string) bool {
	return t.kind == tokGroup && t.text == open
}

// Nodes that are kept as one token even though tree-sitter gives them children.
var atomicKinds = map[string]bool{
	"string_literal":     true,
	"raw_string_literal": true,
	"char_literal":       true,
	"integer_literal":    true,
	"float_literal":      true,
	"boolean_literal":    true,
	"lifetime":           true,
}

var commentKinds = map[string]bool{
	"line_comment":  true,
	"block_comment": true,
}

var closers = map[string]string{"(": ")", "[": "]", "{": "}"}

// lex parses src with tree-sitter-rust and turns the leaves of the syntax
// tree into token trees. A tree with ERROR or MISSING nodes rejects the file.
func lex(parser *sitter.Parser, path string, src []byte) ([]token, error) {
	if !utf8.Valid(src) {
		return nil, &facts.FileReadError{Path: path, Err: errors.New("file is not valid UTF-8")}
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, &facts.ParseError{Path: path, Err: errors.New("tree-sitter returned no tree")}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &facts.ParseError{Path: path, Line: firstErrorLine(root), Err: errors.New("syntax error")}
	}

	var flat []token
	flatten(root, src, &flat)
	toks, err := group(flat)
	if err != nil {
		return nil, &facts.ParseError{Path: path, Err: err}
	}
	return toks, nil
}

func flatten(n *sitter.Node, src []byte, out *[]token) {
	kind := n.Kind()
	if commentKinds[kind] {
		return
	}
	if atomicKinds[kind] || n.ChildCount() == 0 {
		text := n.Utf8Text(src)
		if text == "" {
			return
		}
		*out = append(*out, token{
			kind:    classify(kind, text),
			text:    text,
			line:    rowToLine(n.StartPosition().Row),
			endLine: rowToLine(n.EndPosition().Row),
		})
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		flatten(n.Child(i), src, out)
	}
}

func classify(kind, text string) tokenKind {
	if atomicKinds[kind] {
		return tokLiteral
	}
	r, _ := utf8.DecodeRuneInString(text)
	if r == '_' || unicode.IsLetter(r) {
		return tokIdent
	}
	return tokPunct
}

// group nests a flat token stream by its (), [] and {} delimiters.
func group(flat []token) ([]token, error) {
	type frame struct {
		open token
		toks []token
	}
	stack := []frame{{}}
	for _, t := range flat {
		if t.kind == tokPunct {
			if _, ok := closers[t.text]; ok {
				stack = append(stack, frame{open: t})
				continue
			}
			if t.text == ")" || t.text == "]" || t.text == "}" {
				if len(stack) == 1 || closers[stack[len(stack)-1].open.text] != t.text {
					return nil, fmt.Errorf("unbalanced %q at line %d", t.text, t.line)
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				g := token{
					kind:     tokGroup,
					text:     top.open.text,
					line:     top.open.line,
					endLine:  t.line,
					children: top.toks,
				}
				parent := &stack[len(stack)-1]
				parent.toks = append(parent.toks, g)
				continue
			}
		}
		top := &stack[len(stack)-1]
		top.toks = append(top.toks, t)
	}
	if len(stack) != 1 {
		open := stack[len(stack)-1].open
		return nil, fmt.Errorf("unclosed %q at line %d", open.text, open.line)
	}
	return stack[0].toks, nil
}

func firstErrorLine(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return rowToLine(n.StartPosition().Row)
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c.HasError() {
			return firstErrorLine(c)
		}
	}
	return 0
}

func rowToLine(row uint) int {
	line, err := safecast.Conv[int](row)
	if err != nil {
		return 0
	}
	return line + 1
}
