package source

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/Benny93/pyxis-go/internal/diag"
)

// Parse caps preventing pathological input from dominating a rebuild.
const (
	maxParseDiags = 100
	maxParseDepth = 1000
)

// Parser wraps a tree-sitter parser configured for Python. A Parser is
// not safe for concurrent use.
type Parser struct {
	inner *sitter.Parser
}

// NewParser creates a Python parser.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{inner: p}
}

// Parse produces a syntax tree for content. Malformed input still
// yields a best-effort tree; every ERROR or missing node becomes one
// diagnostic.
func (p *Parser) Parse(ctx context.Context, content []byte) (*sitter.Tree, []diag.Diagnostic, error) {
	tree, err := p.inner.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing source: %w", err)
	}
	var diags []diag.Diagnostic
	if tree.RootNode().HasError() {
		collectParseErrors(tree.RootNode(), content, &diags, 0)
	}
	return tree, diags, nil
}

func collectParseErrors(node *sitter.Node, content []byte, diags *[]diag.Diagnostic, depth int) {
	if depth > maxParseDepth || len(*diags) >= maxParseDiags {
		return
	}

	if node.IsError() || node.IsMissing() {
		start := int(node.StartByte())
		end := int(node.EndByte())
		if end > len(content) {
			end = len(content)
		}
		msg := "syntax error"
		if node.IsMissing() {
			msg = fmt.Sprintf("missing %s", node.Type())
		} else if end > start && end-start <= 40 {
			msg = fmt.Sprintf("unexpected %q", content[start:end])
		}
		*diags = append(*diags, diag.Diagnostic{
			Code:     diag.CodeSyntaxError,
			Severity: diag.SeverityError,
			Message:  msg,
			Start:    start,
			End:      end,
		})
		return
	}
	if !node.HasError() {
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collectParseErrors(node.Child(i), content, diags, depth+1)
	}
}

// Unquote strips a Python string literal down to its raw text: the
// optional r/b/u/f prefix and the surrounding single, double or triple
// quotes. Escape sequences are left as written.
func Unquote(s string) string {
	for len(s) > 0 {
		switch s[0] {
		case 'r', 'R', 'b', 'B', 'u', 'U', 'f', 'F':
			s = s[1:]
			continue
		}
		break
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
