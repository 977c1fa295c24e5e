package modules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/source"
)

// Declaration describes one discovered module directory and its parsed
// manifest.
type Declaration struct {
	// Name is the module name, the directory base name.
	Name string

	// Dir is the absolute module directory.
	Dir string

	// ManifestPath is the absolute path of the __manifest__.py.
	ManifestPath string

	// Depends lists the declared module dependencies.
	Depends []string

	// Data lists the declared data files.
	Data []string

	// AutoInstall marks modules installed automatically once their
	// dependencies are.
	AutoInstall bool

	// Description is the declared human-readable description.
	Description string

	// Valid is false when the manifest could not be read or does not
	// hold a dictionary literal.
	Valid bool

	// Diags collects manifest problems.
	Diags []diag.Diagnostic
}

// LoadDeclaration reads and parses dir/__manifest__.py into a
// Declaration. Parse problems mark the declaration invalid and are
// reported as diagnostics rather than errors.
func LoadDeclaration(ctx context.Context, parser *source.Parser, dir string) *Declaration {
	decl := &Declaration{
		Name:         filepath.Base(dir),
		Dir:          dir,
		ManifestPath: filepath.Join(dir, ManifestName),
	}
	content, err := os.ReadFile(decl.ManifestPath)
	if err != nil {
		decl.Diags = append(decl.Diags, diag.Diagnostic{
			Code:     diag.CodeInvalidManifest,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("cannot read manifest: %v", err),
		})
		return decl
	}
	tree, _, err := parser.Parse(ctx, content)
	if err != nil {
		decl.Diags = append(decl.Diags, diag.Diagnostic{
			Code:     diag.CodeInvalidManifest,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("cannot parse manifest: %v", err),
		})
		return decl
	}
	defer tree.Close()

	dict := manifestDict(tree.RootNode())
	if dict == nil {
		decl.Diags = append(decl.Diags, diag.Diagnostic{
			Code:     diag.CodeInvalidManifest,
			Severity: diag.SeverityError,
			Message:  "manifest does not contain a dictionary",
			End:      len(content),
		})
		return decl
	}

	for i := 0; i < int(dict.NamedChildCount()); i++ {
		pair := dict.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		key := pair.ChildByFieldName("key")
		value := pair.ChildByFieldName("value")
		if key == nil || value == nil || key.Type() != "string" {
			continue
		}
		switch source.Unquote(key.Content(content)) {
		case "depends":
			decl.Depends = stringList(value, content)
		case "data":
			decl.Data = stringList(value, content)
		case "auto_install":
			decl.AutoInstall = value.Type() == "true"
		case "description":
			if value.Type() == "string" {
				decl.Description = source.Unquote(value.Content(content))
			}
		}
	}
	decl.Valid = true
	return decl
}

// manifestDict finds the first top-level dictionary literal.
func manifestDict(root *sitter.Node) *sitter.Node {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "expression_statement" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			if expr := child.NamedChild(j); expr.Type() == "dictionary" {
				return expr
			}
		}
	}
	return nil
}

func stringList(node *sitter.Node, content []byte) []string {
	if node.Type() != "list" && node.Type() != "tuple" {
		return nil
	}
	var out []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if item := node.NamedChild(i); item.Type() == "string" {
			out = append(out, source.Unquote(item.Content(content)))
		}
	}
	return out
}

// DependsByName maps declarations to their dependency lists, the input
// of SortByLoadOrder. Invalid declarations keep their declared
// dependencies so the sort can still report on them.
func DependsByName(decls []*Declaration) map[string][]string {
	out := make(map[string][]string, len(decls))
	for _, d := range decls {
		out[d.Name] = d.Depends
	}
	return out
}
