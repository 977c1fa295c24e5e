// Package rebuild turns file change events into graph invalidations
// and coalesced rebuild passes. The Orchestrator owns an ordered,
// deduplicated queue of files to rebuild and runs on the goroutine
// that owns the graph; the debounce worker and the filesystem watcher
// run on their own goroutines and communicate with the owner only
// through channels.
package rebuild

import (
	"context"
	"log/slog"

	"github.com/Benny93/pyxis-go/internal/build"
	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// Orchestrator invalidates graph state for changed files and rebuilds
// the queued set. All methods must run on the goroutine that owns the
// graph.
type Orchestrator struct {
	log *slog.Logger
	b   *build.Context

	queue  []string
	queued map[string]struct{}
}

// NewOrchestrator returns an orchestrator over the build context.
func NewOrchestrator(log *slog.Logger, b *build.Context) *Orchestrator {
	return &Orchestrator{
		log:    log,
		b:      b,
		queued: make(map[string]struct{}),
	}
}

// Changed invalidates path after its content changed or the file
// appeared. The file's own declarations rebuild from scratch; files
// whose evaluations referenced path re-resolve from the import stage.
// Both end up on the queue.
func (o *Orchestrator) Changed(path string) {
	if file := o.b.Graph.FileByPath(path); file != nil && file.File != nil {
		file.File.ResetFrom(diag.StageArch)
	}
	o.resetDependents(path)
	o.enqueue(path)
}

// Deleted unloads path's subtree. Weak references into it dangle until
// their owners rebuild, so dependents are reset and queued; the path
// itself is not.
func (o *Orchestrator) Deleted(path string) {
	if file := o.b.Graph.FileByPath(path); file != nil {
		o.b.Graph.RemoveSubtree(file.ID)
	}
	o.resetDependents(path)
	o.dequeue(path)
}

// resetDependents rolls every recorded dependent of path back to the
// import-resolution stage and queues it.
func (o *Orchestrator) resetDependents(path string) {
	for _, dep := range o.b.Graph.Dependents(path) {
		file := o.b.Graph.FileByPath(dep)
		if file == nil || file.File == nil {
			continue
		}
		file.File.ResetFrom(diag.StageArchEval)
		file.File.FlushEvalCache()
		o.enqueue(dep)
	}
}

func (o *Orchestrator) enqueue(path string) {
	if _, ok := o.queued[path]; ok {
		return
	}
	o.queued[path] = struct{}{}
	o.queue = append(o.queue, path)
}

func (o *Orchestrator) dequeue(path string) {
	if _, ok := o.queued[path]; !ok {
		return
	}
	delete(o.queued, path)
	for i, p := range o.queue {
		if p == path {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			break
		}
	}
}

// Len returns the number of distinct paths waiting for rebuild.
func (o *Orchestrator) Len() int {
	return len(o.queue)
}

// Pending returns the queued paths in arrival order.
func (o *Orchestrator) Pending() []string {
	out := make([]string, len(o.queue))
	copy(out, o.queue)
	return out
}

// Drain rebuilds every queued file through validation, in arrival
// order. Paths with no symbol left (deleted files) are dropped. On
// error or cancellation the failed path and the rest of the queue are
// kept for the next pass.
func (o *Orchestrator) Drain(ctx context.Context) error {
	for len(o.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := o.queue[0]
		if file := o.b.Graph.FileByPath(path); file != nil {
			if err := build.BuildNow(ctx, o.b, file.ID, diag.StageValidation); err != nil {
				return err
			}
		}
		o.queue = o.queue[1:]
		delete(o.queued, path)
	}
	return nil
}

// BuildFile brings one file up to the requested stage immediately,
// bypassing the queue. Interactive queries use it for the file under
// the cursor.
func (o *Orchestrator) BuildFile(ctx context.Context, id symbols.SymbolID, stage diag.Stage) error {
	return build.BuildNow(ctx, o.b, id, stage)
}
