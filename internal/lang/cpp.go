package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/phobologic/reqtrace/internal/annotate"
)

func init() {
	Languages["cpp"] = &Language{
		Name:          "cpp",
		Extensions:    []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".h"},
		Comment:       annotate.Style{Line: "//", BlockOpen: "/*", BlockClose: "*/"},
		lang:          cpp.GetLanguage(),
		ConstructName: cppConstructName,
	}
}

// cppConstructName renders test macros with their arguments
// ("TEST(Parser, Empty)"); other constructs use the captured name.
func cppConstructName(nameNode, defNode *sitter.Node, source []byte) string {
	if nameNode.Type() != "parameter_list" {
		return NodeText(nameNode, source)
	}
	params := CollapseWhitespace(NodeText(nameNode, source))
	if decl := defNode.ChildByFieldName("declarator"); decl != nil {
		if macro := decl.ChildByFieldName("declarator"); macro != nil {
			return NodeText(macro, source) + params
		}
	}
	return params
}
