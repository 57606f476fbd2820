package verusextractor

import "github.com/dejo1307/verusreport/internal/facts"

// walk emits one record per function in items. Wrapper and conditional
// blocks are transparent: they keep the enclosing context, and every
// branch of a conditional block is visited.
func walk(path string, items []Item, context string, out []facts.FunctionRecord) []facts.FunctionRecord {
	for _, it := range items {
		switch it := it.(type) {
		case *FnItem:
			vis := it.Visibility
			if context == facts.ContextTrait {
				vis = facts.VisibilityPrivate
			}
			out = append(out, facts.FunctionRecord{
				Name:       it.Name,
				File:       path,
				StartLine:  it.StartLine,
				EndLine:    it.EndLine,
				Kind:       facts.FunctionKind(it.Mode, it.Const),
				Visibility: vis,
				Context:    context,
			})
			out = walk(path, it.Nested, facts.ContextStandalone, out)
		case *TraitItem:
			out = walk(path, it.Items, facts.ContextTrait, out)
		case *ImplItem:
			out = walk(path, it.Items, facts.ContextImpl, out)
		case *ModItem:
			out = walk(path, it.Items, facts.ContextStandalone, out)
		case *WrapperItem:
			out = walk(path, it.Items, context, out)
		case *ConditionalItem:
			for _, branch := range it.Branches {
				out = walk(path, branch, context, out)
			}
		}
	}
	return out
}
