// Package build implements the demand-driven build pipeline over the
// symbol graph. Three stages run per file, each gated on the previous
// one: ARCH creates content symbols from the parse tree, ARCH_EVAL
// resolves imports, base classes and module-level values, and
// VALIDATION checks function bodies. Stages run on the goroutine that
// owns the graph; BuildNow is the only entry point.
package build

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/source"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// Context bundles what the builders operate on. It is owned by the
// session goroutine together with the graph itself.
type Context struct {
	Log     *slog.Logger
	Sources *source.Store
	Graph   *symbols.Graph
}

// BuildNow brings a file or package symbol up to the requested stage,
// forcing lower stages first. Calling it for a stage that is already
// done is a no-op; calling it for a stage that is in progress
// short-circuits, breaking build recursion cycles. The syntax stage is
// owned by the source tracker and never built here.
func BuildNow(ctx context.Context, b *Context, id symbols.SymbolID, stage diag.Stage) error {
	sym := b.Graph.Get(id)
	if sym == nil || sym.File == nil || stage == diag.StageSyntax {
		return nil
	}
	switch sym.File.StageStatus(stage) {
	case symbols.StatusDone, symbols.StatusInProgress:
		return nil
	}
	if stage > diag.StageArch {
		if err := BuildNow(ctx, b, id, stage-1); err != nil {
			return err
		}
	}

	sym.File.SetStageStatus(stage, symbols.StatusInProgress)
	var err error
	switch stage {
	case diag.StageArch:
		err = buildArch(ctx, b, sym)
	case diag.StageArchEval:
		err = buildArchEval(ctx, b, sym)
	case diag.StageValidation:
		err = buildValidation(ctx, b, sym)
	}
	if err != nil {
		sym.File.SetStageStatus(stage, symbols.StatusPending)
		return err
	}
	sym.File.SetStageStatus(stage, symbols.StatusDone)
	return nil
}

// contentDocument returns the document holding the symbol's own
// source: the file itself, or the package's __init__.py.
func (b *Context) contentDocument(sym *symbols.Symbol) *source.Document {
	if sym.Kind == symbols.KindPackage {
		for _, p := range sym.Paths {
			if strings.HasSuffix(p, "__init__.py") {
				return b.Sources.Get(p)
			}
		}
		return nil
	}
	return b.Sources.Get(sym.Path())
}

// clearContent evicts the symbol's declaration children, keeping
// structural children (files, subpackages) in place for rebuilds of a
// package's own __init__ content.
func clearContent(b *Context, sym *symbols.Symbol) {
	var doomed []symbols.SymbolID
	sym.EachChild(func(_ string, _ int, id symbols.SymbolID) {
		child := b.Graph.Get(id)
		if child == nil {
			return
		}
		switch child.Kind {
		case symbols.KindClass, symbols.KindFunction, symbols.KindVariable:
			doomed = append(doomed, id)
		}
	})
	for _, id := range doomed {
		b.Graph.RemoveSubtree(id)
	}
}
