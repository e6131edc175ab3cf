// Package transform implements the two transformer monoids composed
// over a route: I/O-pair transformers over the (source, target) data
// stream, and script-wrapper transformers over the rendered transfer
// script. Both compose left-to-right with max-combining cost, matching
// the transformation algebra.
package transform

import "github.com/wtsi-hgi/shepherd/routing"

// Endpoint is one side of a (source, target) data pair flowing through
// the I/O transformer chain. Filesystem is the registered name the
// address is resolved against; Address is opaque to the transformer
// chain except where a specific transformer inspects its structure
// (vault_transformer, strip_common_prefix).
type Endpoint struct {
	Filesystem string
	Address    string
}

// Pair is one (source, target) endpoint pair flowing through an I/O
// transformer.
type Pair struct {
	Source Endpoint
	Target Endpoint
}

// IOTransformer maps a stream of pairs to a new stream of pairs. Most
// transformers are per-element and act lazily; strip_common_prefix must
// buffer the whole stream to compute a common prefix, which is the one
// sanctioned exception to the planner's single-pass streaming contract.
type IOTransformer struct {
	Name string
	Cost routing.Cost
	Run  func(io []Pair) []Pair

	// Buffers marks a transformer that needs the whole stream materialised
	// before it can run (strip_common_prefix is the only required
	// transformer that sets this). The planner reads the whole source
	// stream into memory only when some transformer in the composed chain
	// sets it; otherwise it streams one pair at a time.
	Buffers bool
}

// IdentityIO is the identity element of the I/O transformer monoid: the
// pass-through.
var IdentityIO = IOTransformer{
	Name: "identity",
	Cost: routing.O1,
	Run:  func(io []Pair) []Pair { return io },
}

// ComposeIO returns f ⊕ g: (f ⊕ g)(io) = g(f(io)), with cost combined by
// max.
func ComposeIO(f, g IOTransformer) IOTransformer {
	return IOTransformer{
		Name:    f.Name + "+" + g.Name,
		Cost:    f.Cost.Combine(g.Cost),
		Buffers: f.Buffers || g.Buffers,
		Run: func(io []Pair) []Pair {
			return g.Run(f.Run(io))
		},
	}
}

// ScriptTransformer wraps a rendered script with an outer template. The
// outer template exposes a "script" placeholder (doubly-demarcated as
// "[[script]]" to avoid colliding with the inner template's own
// "{{source}}"/"{{target}}" variables) and is rendered with the same
// tag set plus the already-rendered inner script.
type ScriptTransformer struct {
	Name string
	Cost routing.Cost
	Run  func(script string, tags map[string]string) string
}

// IdentityScript is the identity element of the script transformer
// monoid: the input script, unchanged.
var IdentityScript = ScriptTransformer{
	Name: "identity",
	Cost: routing.O1,
	Run:  func(script string, _ map[string]string) string { return script },
}

// ComposeScript returns f ⊕ g: (f ⊕ g)(s) = g(f(s)).
func ComposeScript(f, g ScriptTransformer) ScriptTransformer {
	return ScriptTransformer{
		Name: f.Name + "+" + g.Name,
		Cost: f.Cost.Combine(g.Cost),
		Run: func(script string, tags map[string]string) string {
			return g.Run(f.Run(script, tags), tags)
		},
	}
}
