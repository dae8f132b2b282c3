package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"

	"github.com/phobologic/reqtrace/internal/annotate"
)

func init() {
	Languages["ruby"] = &Language{
		Name:          "ruby",
		Extensions:    []string{".rb"},
		Comment:       annotate.Style{Line: "#", BlockOpen: "=begin", BlockClose: "=end"},
		lang:          ruby.GetLanguage(),
		ConstructName: rubyConstructName,
	}
}

// rubyConstructName strips quotes from spec descriptions (it "parses input")
// and qualifies methods with their enclosing class.
func rubyConstructName(nameNode, defNode *sitter.Node, source []byte) string {
	text := NodeText(nameNode, source)
	if nameNode.Type() == "string" {
		return strings.Trim(text, `"'`)
	}
	if defNode.Type() != "method" && defNode.Type() != "singleton_method" {
		return text
	}
	if cls := rubyFindEnclosingClass(defNode, source); cls != "" {
		return cls + "." + text
	}
	return text
}

func rubyFindEnclosingClass(node *sitter.Node, source []byte) string {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Type() == "class" || cur.Type() == "module" {
			if name := cur.ChildByFieldName("name"); name != nil {
				return NodeText(name, source)
			}
			return ""
		}
	}
	return ""
}
