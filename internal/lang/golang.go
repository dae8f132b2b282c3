package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/phobologic/reqtrace/internal/annotate"
)

func init() {
	Languages["go"] = &Language{
		Name:          "go",
		Extensions:    []string{".go"},
		Comment:       annotate.Style{Line: "//", BlockOpen: "/*", BlockClose: "*/"},
		lang:          golang.GetLanguage(),
		ConstructName: goConstructName,
	}
}

// goConstructName qualifies methods with their receiver type ("Server.Run").
func goConstructName(nameNode, defNode *sitter.Node, source []byte) string {
	name := NodeText(nameNode, source)
	if defNode.Type() != "method_declaration" {
		return name
	}
	if recv := goFindReceiverType(defNode, source); recv != "" {
		return recv + "." + name
	}
	return name
}

// goFindReceiverType extracts the receiver type name from a method_declaration node.
// Navigates: method_declaration → parameter_list (receiver) → parameter_declaration → type.
func goFindReceiverType(node *sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for j := 0; j < int(recv.ChildCount()); j++ {
		param := recv.Child(j)
		if param.Type() == "parameter_declaration" {
			return goExtractTypeName(param, source)
		}
	}
	return ""
}

// goExtractTypeName extracts the type name from a parameter_declaration,
// unwrapping pointer_type and generic_type if present.
func goExtractTypeName(param *sitter.Node, source []byte) string {
	for i := 0; i < int(param.ChildCount()); i++ {
		child := param.Child(i)
		switch child.Type() {
		case "type_identifier":
			return NodeText(child, source)
		case "pointer_type", "generic_type":
			for k := 0; k < int(child.ChildCount()); k++ {
				inner := child.Child(k)
				if inner.Type() == "type_identifier" {
					return NodeText(inner, source)
				}
			}
		}
	}
	return ""
}
