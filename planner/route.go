// Package planner implements TransferRoute, which consumes a file
// stream, applies the transformation algebra, and emits a lazy sequence
// of Tasks (script + source + target).
package planner

import (
	"context"
	"fmt"

	"github.com/wtsi-hgi/shepherd/filesystem"
	"github.com/wtsi-hgi/shepherd/routing"
	"github.com/wtsi-hgi/shepherd/transform"
)

// Task is one planned transfer step, prior to persistence.
type Task struct {
	Script string
	Source transform.Endpoint
	Target transform.Endpoint
}

// TransferRoute accepts a source and target filesystem, a transfer
// script template, and a polynomial cost, and accumulates transformers
// via AddIO and AddScript. PlanByData yields tasks for a slice of source
// addresses; PlanByQuery yields them for a FoFN enumerated through the
// source filesystem.
type TransferRoute struct {
	Source       filesystem.Capability
	Target       filesystem.Capability
	ScriptTmpl   string
	Cost         routing.Cost
	ioChain      transform.IOTransformer
	scriptChain  transform.ScriptTransformer
}

// New constructs a TransferRoute. scriptTmpl is only the inner per-file
// template, using the {{source.*}}/{{target.*}} variables; the script
// transformers' wrappers, with their [[script]] placeholder, are applied
// around it at plan time.
func New(source, target filesystem.Capability, scriptTmpl string, cost routing.Cost) *TransferRoute {
	return &TransferRoute{
		Source:      source,
		Target:      target,
		ScriptTmpl:  scriptTmpl,
		Cost:        cost,
		ioChain:     transform.IdentityIO,
		scriptChain: transform.IdentityScript,
	}
}

// AddIO appends an I/O transformer to the route's chain.
func (r *TransferRoute) AddIO(t transform.IOTransformer) {
	r.ioChain = transform.ComposeIO(r.ioChain, t)
	r.Cost = r.Cost.Combine(t.Cost)
}

// AddScript appends a script transformer to the route's chain.
func (r *TransferRoute) AddScript(t transform.ScriptTransformer) {
	r.scriptChain = transform.ComposeScript(r.scriptChain, t)
	r.Cost = r.Cost.Combine(t.Cost)
}

// IOCost returns the cost contributed by I/O transformers alone (their
// costs combined by max), mirroring get_transform(type) filtering by kind.
func (r *TransferRoute) IOCost() routing.Cost { return r.ioChain.Cost }

// ScriptCost returns the cost contributed by script transformers alone.
func (r *TransferRoute) ScriptCost() routing.Cost { return r.scriptChain.Cost }

// PlanByData plans tasks for an already-materialised slice of source
// addresses. Used when the caller has a concrete, finite data set rather
// than a FoFN to stream.
func (r *TransferRoute) PlanByData(addresses []string) ([]Task, error) {
	pairs := make([]transform.Pair, len(addresses))
	for i, addr := range addresses {
		src := transform.Endpoint{Filesystem: r.Source.Name(), Address: addr}
		tgt := transform.Endpoint{Filesystem: r.Target.Name(), Address: addr}
		pairs[i] = transform.Pair{Source: src, Target: tgt}
	}
	return r.planFromPairs(pairs)
}

// TaskFunc receives one planned task during a lazy PlanByQuery pass.
// Returning an error aborts planning and is propagated out of PlanByQuery.
type TaskFunc func(Task) error

// PlanByQuery streams every address from a FoFN at path, resolved against
// the source filesystem's EnumerateFoFN, through the route's I/O
// transformer chain, invoking emit once per planned task. When the
// configured chain contains no buffering transformer (the common case),
// each address is transformed and emitted as it is read off the cursor, so
// an arbitrarily large FoFN is planned in bounded memory, per §4.1's
// streaming requirement. Only when a buffering transformer such as
// strip_common_prefix is configured does this fall back to reading the
// whole cursor into memory first — the one sanctioned exception to the
// planner's single-pass contract.
func (r *TransferRoute) PlanByQuery(ctx context.Context, path string, delimiter byte, compressed bool, emit TaskFunc) error {
	cursor, err := r.Source.EnumerateFoFN(ctx, path, delimiter, compressed)
	if err != nil {
		return fmt.Errorf("planner: enumerate fofn: %w", err)
	}
	defer cursor.Close()

	if r.ioChain.Buffers {
		return r.planBuffered(ctx, cursor, emit)
	}
	return r.planStreaming(ctx, cursor, emit)
}

// planStreaming transforms and emits one address at a time, never holding
// more than a single pair in memory.
func (r *TransferRoute) planStreaming(ctx context.Context, cursor filesystem.Cursor, emit TaskFunc) error {
	for {
		addr, ok, err := cursor.Next(ctx)
		if err != nil {
			return fmt.Errorf("planner: enumerate fofn: %w", err)
		}
		if !ok {
			return nil
		}

		pair := transform.Pair{
			Source: transform.Endpoint{Filesystem: r.Source.Name(), Address: addr},
			Target: transform.Endpoint{Filesystem: r.Target.Name(), Address: addr},
		}
		for _, p := range r.ioChain.Run([]transform.Pair{pair}) {
			if err := emit(r.render(p)); err != nil {
				return err
			}
		}
	}
}

// planBuffered reads the whole cursor into memory before planning, for
// routes whose I/O chain contains a transformer that needs the whole
// stream at once.
func (r *TransferRoute) planBuffered(ctx context.Context, cursor filesystem.Cursor, emit TaskFunc) error {
	var addresses []string
	for {
		addr, ok, err := cursor.Next(ctx)
		if err != nil {
			return fmt.Errorf("planner: enumerate fofn: %w", err)
		}
		if !ok {
			break
		}
		addresses = append(addresses, addr)
	}

	tasks, err := r.PlanByData(addresses)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := emit(task); err != nil {
			return err
		}
	}
	return nil
}

func (r *TransferRoute) planFromPairs(pairs []transform.Pair) ([]Task, error) {
	transformed := r.ioChain.Run(pairs)

	tasks := make([]Task, 0, len(transformed))
	for _, pair := range transformed {
		tasks = append(tasks, r.render(pair))
	}
	return tasks, nil
}

// render applies the script transformer chain to one already-transformed
// pair, producing the Task emitted to the caller.
func (r *TransferRoute) render(pair transform.Pair) Task {
	tags := transform.Tags(pair.Source, pair.Target)
	inner := transform.RenderInner(r.ScriptTmpl, pair.Source, pair.Target)
	script := r.scriptChain.Run(inner, tags)

	return Task{
		Script: script,
		Source: pair.Source,
		Target: pair.Target,
	}
}
