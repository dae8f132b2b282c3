package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/phobologic/reqtrace/internal/annotate"
)

func init() {
	Languages["python"] = &Language{
		Name:           "python",
		Extensions:     []string{".py"},
		Comment:        annotate.Style{Line: "#", BlockOpen: `"""`, BlockClose: `"""`},
		lang:           python.GetLanguage(),
		ConstructName:  pythonConstructName,
		ConstructStart: pythonConstructStart,
	}
}

// pythonConstructName qualifies methods with their class ("TestParser.test_empty").
func pythonConstructName(nameNode, defNode *sitter.Node, source []byte) string {
	name := NodeText(nameNode, source)
	if defNode.Type() != "function_definition" {
		return name
	}
	cls := pythonFindEnclosingClass(defNode)
	if cls == nil {
		return name
	}
	if clsName := cls.ChildByFieldName("name"); clsName != nil {
		return NodeText(clsName, source) + "." + name
	}
	return name
}

// pythonConstructStart moves a decorated definition's start up to its first
// decorator, so the comment block is looked for above the decorators.
func pythonConstructStart(defNode *sitter.Node) *sitter.Node {
	if p := defNode.Parent(); p != nil && p.Type() == "decorated_definition" {
		return p
	}
	return defNode
}

func pythonFindEnclosingClass(funcNode *sitter.Node) *sitter.Node {
	parent := funcNode.Parent()
	if parent == nil {
		return nil
	}

	// Direct: func -> block -> class_definition
	if parent.Type() == "block" && parent.Parent() != nil && parent.Parent().Type() == "class_definition" {
		return parent.Parent()
	}

	// Decorated: func -> decorated_definition -> block -> class_definition
	if parent.Type() == "decorated_definition" {
		gp := parent.Parent()
		if gp != nil && gp.Type() == "block" && gp.Parent() != nil && gp.Parent().Type() == "class_definition" {
			return gp.Parent()
		}
	}

	return nil
}
