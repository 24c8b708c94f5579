package main

import (
	"regexp"
	"strings"

	"github.com/kotadb/kotadb/pkg/types"
)

// naiveGoParser is the CLI's built-in stand-in for a real parser
// collaborator. It recognizes top-level Go declarations and call
// expressions by regular expression rather than by parsing a syntax
// tree; it exists so `index-codebase` is exercisable end-to-end without
// wiring an actual tree-sitter grammar, not as a general-purpose parser.
// Any ingest.SymbolParser / bridge.ReferenceParser may be substituted in
// its place.
type naiveGoParser struct{}

var (
	goFuncDecl   = regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)\s*\(`)
	goTypeDecl   = regexp.MustCompile(`(?m)^type\s+([A-Za-z_]\w*)\s+(struct|interface)\b`)
	goConstDecl  = regexp.MustCompile(`(?m)^(?:const|var)\s+([A-Za-z_]\w*)\s*=`)
	goCallExpr   = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)
	goKeywordSet = map[string]bool{
		"if": true, "for": true, "switch": true, "select": true, "return": true,
		"func": true, "go": true, "defer": true, "make": true, "len": true,
		"append": true, "cap": true, "new": true, "panic": true, "recover": true,
	}
)

func (naiveGoParser) ParseSymbols(path string, content []byte) ([]types.Symbol, error) {
	if !strings.HasSuffix(path, ".go") {
		return nil, nil
	}
	lines := strings.Split(string(content), "\n")
	var symbols []types.Symbol

	for i, line := range lines {
		lineNo := uint32(i + 1)
		if m := goFuncDecl.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, types.Symbol{
				ID: types.NewID(), Name: m[1], Kind: funcKind(line),
				FilePath: path, StartLine: lineNo, EndLine: matchBraceEnd(lines, i),
			})
			continue
		}
		if m := goTypeDecl.FindStringSubmatch(line); m != nil {
			kind := types.SymbolStruct
			if m[2] == "interface" {
				kind = types.SymbolClass
			}
			symbols = append(symbols, types.Symbol{
				ID: types.NewID(), Name: m[1], Kind: kind,
				FilePath: path, StartLine: lineNo, EndLine: matchBraceEnd(lines, i),
			})
			continue
		}
		if m := goConstDecl.FindStringSubmatch(line); m != nil {
			symbols = append(symbols, types.Symbol{
				ID: types.NewID(), Name: m[1], Kind: types.SymbolVariable,
				FilePath: path, StartLine: lineNo, EndLine: lineNo,
			})
		}
	}
	return symbols, nil
}

func funcKind(line string) types.SymbolKind {
	if strings.HasPrefix(strings.TrimSpace(line), "func (") {
		return types.SymbolMethod
	}
	return types.SymbolFunction
}

// matchBraceEnd returns the 1-based line on which the first brace opened
// on or after lines[start] closes, or start+1 if no brace opens on or
// after that line.
func matchBraceEnd(lines []string, start int) uint32 {
	depth := 0
	seen := false
	for i := start; i < len(lines); i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				seen = true
			case '}':
				depth--
			}
		}
		if seen && depth <= 0 {
			return uint32(i + 1)
		}
	}
	return uint32(start + 1)
}

func (naiveGoParser) ParseReferences(path string, content []byte) ([]types.Reference, error) {
	if !strings.HasSuffix(path, ".go") {
		return nil, nil
	}
	lines := strings.Split(string(content), "\n")
	var refs []types.Reference
	for i, line := range lines {
		for _, m := range goCallExpr.FindAllStringSubmatchIndex(line, -1) {
			name := line[m[2]:m[3]]
			if goKeywordSet[name] {
				continue
			}
			refs = append(refs, types.Reference{
				Name: name,
				Kind: types.RefFunctionCall,
				Location: types.Location{
					Line:   uint32(i + 1),
					Column: uint32(m[2] + 1),
				},
			})
		}
	}
	return refs, nil
}
