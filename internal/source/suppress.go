package source

import (
	"sort"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
)

// Suppressions records suppress-comment annotations. Lines is keyed by
// zero-based line for trailing comments; Blocks is keyed by the byte
// offset of the class or def token the comment anchors to, with offset
// zero for comments preceding the first statement of the file.
type Suppressions struct {
	Lines  map[int]SuppressEntry
	Blocks map[int]SuppressEntry
}

// SuppressEntry is one suppress annotation. All suppresses every code;
// otherwise only the listed codes are suppressed.
type SuppressEntry struct {
	All   bool
	Codes []string
}

func (e SuppressEntry) covers(code string) bool {
	if e.All {
		return true
	}
	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// merge combines two entries anchored at the same place.
func (e SuppressEntry) merge(other SuppressEntry) SuppressEntry {
	if e.All || other.All {
		return SuppressEntry{All: true}
	}
	return SuppressEntry{Codes: append(e.Codes, other.Codes...)}
}

// Comment forms that start a suppress annotation. Codes may follow,
// split on commas, colons or whitespace.
var suppressPrefixes = []string{"#noqa", "# noqa", "# pyxis: noqa"}

// Comment forms that declare an expected diagnostic for the test
// harness.
var expectedPrefixes = []string{"#expect", "# expect"}

// extractAnnotations walks the tree for comment tokens and records
// suppress entries and, when enabled, expected-diagnostic annotations.
func (d *Document) extractAnnotations(collectExpected bool) {
	d.Suppress = Suppressions{
		Lines:  make(map[int]SuppressEntry),
		Blocks: make(map[int]SuppressEntry),
	}
	d.Expected = nil
	if d.Tree == nil {
		return
	}
	root := d.Tree.RootNode()

	var comments []*sitter.Node
	var defStarts []int
	collectCommentsAndDefs(root, &comments, &defStarts, 0)

	firstStmt := len(d.Content)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "comment" {
			firstStmt = int(child.StartByte())
			break
		}
	}

	for _, c := range comments {
		start := int(c.StartByte())
		end := int(c.EndByte())
		if end > len(d.Content) {
			end = len(d.Content)
		}
		text := string(d.Content[start:end])
		line := d.LineAt(start)

		if collectExpected {
			if codes, ok := parseAnnotation(text, expectedPrefixes); ok {
				if d.Expected == nil {
					d.Expected = make(map[int][]string)
				}
				d.Expected[line] = append(d.Expected[line], codes...)
				continue
			}
		}

		codes, ok := parseAnnotation(text, suppressPrefixes)
		if !ok {
			continue
		}
		entry := SuppressEntry{All: len(codes) == 0, Codes: codes}

		switch {
		case !d.standaloneComment(start, line):
			d.Suppress.Lines[line] = d.Suppress.Lines[line].merge(entry)
		case start < firstStmt:
			d.Suppress.Blocks[0] = d.Suppress.Blocks[0].merge(entry)
		default:
			idx := sort.SearchInts(defStarts, start+1)
			if idx < len(defStarts) {
				anchor := defStarts[idx]
				d.Suppress.Blocks[anchor] = d.Suppress.Blocks[anchor].merge(entry)
			}
		}
	}
}

// standaloneComment reports whether only whitespace precedes the
// comment on its line.
func (d *Document) standaloneComment(offset, line int) bool {
	for i := d.lines[line]; i < offset; i++ {
		if d.Content[i] != ' ' && d.Content[i] != '\t' {
			return false
		}
	}
	return true
}

func collectCommentsAndDefs(node *sitter.Node, comments *[]*sitter.Node, defStarts *[]int, depth int) {
	if depth > maxParseDepth {
		return
	}
	switch node.Type() {
	case "comment":
		*comments = append(*comments, node)
		return
	case "class_definition", "function_definition":
		*defStarts = append(*defStarts, int(node.StartByte()))
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectCommentsAndDefs(node.Child(i), comments, defStarts, depth+1)
	}
}

// parseAnnotation matches text against the given comment forms and
// returns the trailing code list.
func parseAnnotation(text string, prefixes []string) ([]string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(text, p) {
			rest := text[len(p):]
			return splitCodes(rest), true
		}
	}
	return nil, false
}

func splitCodes(s string) []string {
	codes := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ':' || unicode.IsSpace(r)
	})
	if len(codes) == 0 {
		return nil
	}
	return codes
}
