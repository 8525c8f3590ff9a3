package chunk

import (
	"context"
	"sort"
)

// Boundaries parses source as ext's tree-sitter language and returns the
// end-byte offset of every top-level declaration (function, method, class,
// interface, type, const, var), sorted ascending. The second return value
// is false when ext maps to no registered language, in which case callers
// should fall back to their own boundary heuristic.
func Boundaries(ctx context.Context, source []byte, ext string) ([]int, bool) {
	registry := DefaultRegistry()
	lang, ok := registry.GetByExtension(ext)
	if !ok {
		return nil, false
	}

	p := NewParserWithRegistry(registry)
	defer p.Close()

	tree, err := p.Parse(ctx, source, lang.Name)
	if err != nil || tree == nil || tree.Root == nil {
		return nil, false
	}

	declTypes := declarationNodeTypes(lang)

	ends := make([]int, 0, len(tree.Root.Children))
	for _, child := range tree.Root.Children {
		if declTypes[child.Type] {
			ends = append(ends, int(child.EndByte))
		}
	}
	sort.Ints(ends)
	return ends, true
}

func declarationNodeTypes(lang *LanguageConfig) map[string]bool {
	types := make(map[string]bool)
	for _, group := range [][]string{
		lang.FunctionTypes, lang.MethodTypes, lang.ClassTypes,
		lang.InterfaceTypes, lang.TypeDefTypes, lang.ConstantTypes, lang.VariableTypes,
	} {
		for _, t := range group {
			types[t] = true
		}
	}
	return types
}
