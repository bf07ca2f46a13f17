// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package sourcetags

import (
	"context"
	"os"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

// TreeSitterExtractor is the alternate, in-process C3 backend: it parses
// C/C++ files with tree-sitter instead of shelling out to ctags. Parsers
// are pooled per the teacher's TreeSitterParser shape, since a
// *sitter.Parser is not safe for concurrent reuse.
type TreeSitterExtractor struct {
	pool       sync.Pool
	parserInit sync.Once
}

// NewTreeSitterExtractor returns a pooled tree-sitter-backed Extractor.
func NewTreeSitterExtractor() *TreeSitterExtractor {
	return &TreeSitterExtractor{}
}

func (t *TreeSitterExtractor) initPool() {
	t.parserInit.Do(func() {
		t.pool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(cpp.GetLanguage())
			return p
		}
	})
}

// Functions implements Extractor by walking the tree-sitter parse tree for
// function_definition and declaration nodes.
func (t *TreeSitterExtractor) Functions(ctx context.Context, file string, includePrototypes bool) ([]FunctionDefinition, error) {
	t.initPool()
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	parserObj := t.pool.Get()
	parser, _ := parserObj.(*sitter.Parser)
	defer t.pool.Put(parser)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var functions []FunctionDefinition
	var namespaceStack, classStack []string

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		switch node.Type() {
		case "namespace_definition":
			name := childText(node, "name", content)
			namespaceStack = append(namespaceStack, name)
			walkChildren(node, walk)
			namespaceStack = namespaceStack[:len(namespaceStack)-1]
			return
		case "class_specifier", "struct_specifier":
			name := childText(node, "name", content)
			classStack = append(classStack, name)
			walkChildren(node, walk)
			classStack = classStack[:len(classStack)-1]
			return
		case "function_definition":
			functions = append(functions, buildFunctionDefinition(node, file, content, namespaceStack, classStack, false))
		case "declaration":
			if includePrototypes && looksLikeFunctionPrototype(node) {
				functions = append(functions, buildFunctionDefinition(node, file, content, namespaceStack, classStack, true))
			}
		}
		walkChildren(node, walk)
	}
	walk(tree.RootNode())

	return functions, nil
}

// NonFunctionalEntities implements Extractor by walking declarations that
// are not functions: field declarations and #define directives (object- and
// function-like). Namespace-scope variable declarations are not reported.
func (t *TreeSitterExtractor) NonFunctionalEntities(ctx context.Context, file string) ([]NonFunctionalEntityDefinition, error) {
	t.initPool()
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	parserObj := t.pool.Get()
	parser, _ := parserObj.(*sitter.Parser)
	defer t.pool.Put(parser)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var entities []NonFunctionalEntityDefinition
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		switch node.Type() {
		case "preproc_def", "preproc_function_def":
			name := childText(node, "name", content)
			props := "macro"
			entities = append(entities, NonFunctionalEntityDefinition{
				File:       file,
				Name:       name,
				StartLine:  int(node.StartPoint().Row) + 1,
				EndLine:    int(node.EndPoint().Row) + 1,
				Properties: &props,
			})
		case "field_declaration":
			if name := childText(node, "declarator", content); name != "" {
				props := "member"
				entities = append(entities, NonFunctionalEntityDefinition{
					File:       file,
					Name:       name,
					StartLine:  int(node.StartPoint().Row) + 1,
					EndLine:    int(node.EndPoint().Row) + 1,
					Properties: &props,
				})
			}
		}
		walkChildren(node, walk)
	}
	walk(tree.RootNode())

	return entities, nil
}

func walkChildren(node *sitter.Node, visit func(*sitter.Node)) {
	for i := 0; i < int(node.ChildCount()); i++ {
		visit(node.Child(i))
	}
}

func childText(node *sitter.Node, field string, content []byte) string {
	c := node.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return c.Content(content)
}

func looksLikeFunctionPrototype(node *sitter.Node) bool {
	declarator := node.ChildByFieldName("declarator")
	if declarator == nil {
		return false
	}
	return declarator.Type() == "function_declarator"
}

func buildFunctionDefinition(node *sitter.Node, file string, content []byte, namespaceStack, classStack []string, prototype bool) FunctionDefinition {
	declarator := node.ChildByFieldName("declarator")
	signature := ""
	if declarator != nil {
		signature = declarator.Content(content)
	}
	if prototype {
		signature = PrototypePrefix + signature
	}

	var namespace, className *string
	if len(namespaceStack) > 0 {
		ns := joinScope(namespaceStack)
		namespace = &ns
	}
	if len(classStack) > 0 {
		cls := classStack[len(classStack)-1]
		className = &cls
	}

	return FunctionDefinition{
		File:      file,
		Signature: signature,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Namespace: namespace,
		ClassName: className,
	}
}

func joinScope(stack []string) string {
	out := stack[0]
	for _, s := range stack[1:] {
		out += "::" + s
	}
	return out
}
