// Package parse detects traceable constructs in source files using
// tree-sitter.
package parse

import (
	"context"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/reqtrace/internal/lang"
)

// ConstructKind is the syntactic role of a detected construct.
type ConstructKind string

const (
	Function ConstructKind = "function"
	Class    ConstructKind = "class"
	Test     ConstructKind = "test"
	Suite    ConstructKind = "suite"
)

var captureMap = map[string]ConstructKind{
	"definition.function": Function,
	"definition.class":    Class,
	"definition.test":     Test,
	"definition.suite":    Suite,
}

// priority resolves a node captured by several patterns: a test function
// also matches the plain function pattern.
var priority = map[ConstructKind]int{
	Function: 0,
	Class:    0,
	Suite:    1,
	Test:     2,
}

// Construct is a traceable declaration found in a file.
type Construct struct {
	Name string
	Kind ConstructKind
	// Line is the 1-based line of the declaration's name.
	Line int
	// Index is the 0-based line where the construct starts, including
	// leading decorators. Annotations are looked for above it.
	Index int
}

// IsTest reports whether the construct is a test case or test suite.
func (c Construct) IsTest() bool {
	return c.Kind == Test || c.Kind == Suite
}

// DetectConstructs parses a source file and returns its constructs ordered
// by position. The parser must be created for l.
func DetectConstructs(l *lang.Language, parser *sitter.Parser, query *sitter.Query, source []byte) []Construct {
	if len(source) == 0 {
		return nil
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	type found struct {
		Construct
		start uint32
	}
	byNode := make(map[uint32]*found)

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		var nameNode, defNode *sitter.Node
		var kind ConstructKind
		var known bool
		for _, c := range match.Captures {
			cname := query.CaptureNameForId(c.Index)
			if cname == "name" {
				nameNode = c.Node
			} else if k, ok := captureMap[cname]; ok {
				kind, known = k, true
				defNode = c.Node
			}
		}
		if nameNode == nil || defNode == nil || !known {
			continue
		}

		key := defNode.StartByte()
		if prev, dup := byNode[key]; dup && priority[prev.Kind] >= priority[kind] {
			continue
		}

		name := lang.NodeText(nameNode, source)
		if l.ConstructName != nil {
			name = l.ConstructName(nameNode, defNode, source)
		}
		startNode := defNode
		if l.ConstructStart != nil {
			startNode = l.ConstructStart(defNode)
		}

		byNode[key] = &found{
			Construct: Construct{
				Name:  name,
				Kind:  kind,
				Line:  int(nameNode.StartPoint().Row) + 1,
				Index: int(startNode.StartPoint().Row),
			},
			start: key,
		}
	}

	all := make([]*found, 0, len(byNode))
	for _, f := range byNode {
		all = append(all, f)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].start < all[j].start
	})

	constructs := make([]Construct, len(all))
	for i, f := range all {
		constructs[i] = f.Construct
	}
	return constructs
}
