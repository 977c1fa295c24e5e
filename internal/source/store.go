package source

import (
	"context"
	"log/slog"
	"os"
	"sort"

	"github.com/Benny93/pyxis-go/internal/diag"
)

// Store tracks every source file of the workspace by absolute path.
//
// The store is confined to the session goroutine and is not safe for
// concurrent use.
type Store struct {
	log      *slog.Logger
	parser   *Parser
	encoding Encoding
	docs     map[string]*Document

	collectExpected bool
}

// NewStore creates an empty store using the given position encoding.
func NewStore(log *slog.Logger, encoding Encoding) *Store {
	return &Store{
		log:      log,
		parser:   NewParser(),
		encoding: encoding,
		docs:     make(map[string]*Document),
	}
}

// EnableExpectedAnnotations turns on collection of expected-diagnostic
// test annotations for documents parsed after the call.
func (s *Store) EnableExpectedAnnotations() {
	s.collectExpected = true
}

// Encoding returns the negotiated position encoding.
func (s *Store) Encoding() Encoding {
	return s.encoding
}

// Get returns the tracked document for path, or nil.
func (s *Store) Get(path string) *Document {
	return s.docs[path]
}

// Paths returns the tracked paths in sorted order.
func (s *Store) Paths() []string {
	paths := make([]string, 0, len(s.docs))
	for p := range s.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Count returns the number of tracked documents.
func (s *Store) Count() int {
	return len(s.docs)
}

// Update applies an edit to the document at path and reports whether
// the content hash changed.
//
// A nil changes slice reloads the document from disk; open documents
// ignore disk reloads unless force is set. Client edits carry a
// version and are dropped when the version is not newer than the
// tracked one, again unless force is set. An unreadable file is logged
// and reported as unchanged.
func (s *Store) Update(ctx context.Context, path string, changes []ContentChange, version int32, force bool) bool {
	doc, existed := s.docs[path]

	if changes == nil {
		if existed && doc.Open && !force {
			return false
		}
		content, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn("reading file", "path", path, "error", err)
			return false
		}
		if !existed {
			doc = &Document{Path: path, Version: VersionOnDisk}
			s.docs[path] = doc
		}
		oldHash := doc.Hash
		doc.setContent(content)
		doc.Open = false
		doc.Version = VersionOnDisk
		if existed && doc.Hash == oldHash && doc.Tree != nil {
			return false
		}
		s.reparse(ctx, doc)
		return !existed || doc.Hash != oldHash
	}

	if existed && !force && version <= doc.Version {
		return false
	}
	if !existed {
		doc = &Document{Path: path, Version: VersionOnDisk}
		s.docs[path] = doc
	}
	oldHash := doc.Hash
	doc.applyChanges(changes, s.encoding)
	doc.Open = true
	if version > doc.Version {
		doc.Version = version
	}
	if existed && doc.Hash == oldHash && doc.Tree != nil {
		return false
	}
	s.reparse(ctx, doc)
	return !existed || doc.Hash != oldHash
}

// CloseDocument hands content ownership back to the disk copy and
// reports whether that changed the content.
func (s *Store) CloseDocument(ctx context.Context, path string) bool {
	doc := s.docs[path]
	if doc == nil {
		return false
	}
	doc.Open = false
	doc.Version = VersionOnDisk
	return s.Update(ctx, path, nil, VersionOnDisk, false)
}

// Remove drops a document and releases its parse tree.
func (s *Store) Remove(path string) {
	if doc := s.docs[path]; doc != nil {
		doc.close()
		delete(s.docs, path)
	}
}

// Close releases every retained parse tree.
func (s *Store) Close() {
	for _, doc := range s.docs {
		doc.close()
	}
	s.docs = make(map[string]*Document)
}

func (s *Store) reparse(ctx context.Context, doc *Document) {
	tree, diags, err := s.parser.Parse(ctx, doc.Content)
	if err != nil {
		s.log.Warn("parse failed", "path", doc.Path, "error", err)
		return
	}
	if doc.Tree != nil {
		doc.Tree.Close()
	}
	doc.Tree = tree
	doc.Valid = len(diags) == 0
	doc.SetDiagnostics(diag.StageSyntax, diags)
	doc.extractAnnotations(s.collectExpected)
}
