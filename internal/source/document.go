// Package source implements the source text tracker.
//
// It owns one Document per workspace file: the authoritative content,
// its version and 64-bit hash, the last parse tree, per-stage
// diagnostics, and the suppress-comment annotations extracted from the
// text. Higher layers never read files from disk themselves; they go
// through the Store.
package source

import (
	"github.com/cespare/xxhash/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Benny93/pyxis-go/internal/diag"
)

// VersionOnDisk marks a document whose content came from a disk scan
// and that has never been opened by a client. Any client-provided
// version wins over it.
const VersionOnDisk int32 = -100

// ContentChange is one incremental edit. A nil Range replaces the
// whole document with Text.
type ContentChange struct {
	Range *Range
	Text  string
}

// Document is one tracked source file.
type Document struct {
	// Path is the absolute filesystem path.
	Path string

	// Version is the client document version, or VersionOnDisk when the
	// content was read from disk.
	Version int32

	// Open reports whether a client currently owns the content. Disk
	// events do not overwrite open documents.
	Open bool

	// Content is the authoritative text.
	Content []byte

	// Hash is the 64-bit content hash of Content.
	Hash uint64

	// Tree is the last parse result, retained best-effort even when the
	// content has syntax errors. Nil until the first parse.
	Tree *sitter.Tree

	// Valid is false when the last parse produced error nodes.
	Valid bool

	// Suppress holds the suppress-comment annotations of the last
	// parse.
	Suppress Suppressions

	// Expected holds expected-diagnostic annotations by line, collected
	// only when the store is configured for it.
	Expected map[int][]string

	diags map[diag.Stage][]diag.Diagnostic
	lines []int
}

// setContent replaces the text and recomputes the hash and line table.
func (d *Document) setContent(content []byte) {
	d.Content = content
	d.Hash = xxhash.Sum64(content)
	d.lines = d.lines[:0]
	d.lines = append(d.lines, 0)
	for i, b := range content {
		if b == '\n' {
			d.lines = append(d.lines, i+1)
		}
	}
}

// applyChanges applies the edits in order. Each edit addresses the
// document state produced by the previous one.
func (d *Document) applyChanges(changes []ContentChange, enc Encoding) {
	for _, ch := range changes {
		if ch.Range == nil {
			d.setContent([]byte(ch.Text))
			continue
		}
		start := d.PositionToOffset(ch.Range.Start, enc)
		end := d.PositionToOffset(ch.Range.End, enc)
		if end < start {
			start, end = end, start
		}
		buf := make([]byte, 0, len(d.Content)-(end-start)+len(ch.Text))
		buf = append(buf, d.Content[:start]...)
		buf = append(buf, ch.Text...)
		buf = append(buf, d.Content[end:]...)
		d.setContent(buf)
	}
}

// SetDiagnostics replaces the diagnostics of one pipeline stage,
// leaving the other stages untouched.
func (d *Document) SetDiagnostics(stage diag.Stage, diags []diag.Diagnostic) {
	if d.diags == nil {
		d.diags = make(map[diag.Stage][]diag.Diagnostic)
	}
	if len(diags) == 0 {
		delete(d.diags, stage)
		return
	}
	d.diags[stage] = diags
}

// StageDiagnostics returns the diagnostics of one stage.
func (d *Document) StageDiagnostics(stage diag.Stage) []diag.Diagnostic {
	return d.diags[stage]
}

// Diagnostics returns all diagnostics in stage order.
func (d *Document) Diagnostics() []diag.Diagnostic {
	var out []diag.Diagnostic
	for stage := diag.StageSyntax; stage <= diag.StageValidation; stage++ {
		out = append(out, d.diags[stage]...)
	}
	return out
}

// Suppressed reports whether a suppress annotation covers the
// diagnostic. Line entries cover their own line; block entries cover
// the line containing their anchor offset.
func (d *Document) Suppressed(dg diag.Diagnostic) bool {
	line := d.LineAt(dg.Start)
	if e, ok := d.Suppress.Lines[line]; ok && e.covers(dg.Code) {
		return true
	}
	for anchor, e := range d.Suppress.Blocks {
		if d.LineAt(anchor) == line && e.covers(dg.Code) {
			return true
		}
	}
	return false
}

// close releases the retained parse tree.
func (d *Document) close() {
	if d.Tree != nil {
		d.Tree.Close()
		d.Tree = nil
	}
}
