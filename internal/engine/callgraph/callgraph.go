// Package callgraph links the raw calls recorded on each function of a file to
// the functions and methods defined in that same file.
//
// Resolution is syntactic and best-effort: a callee is matched by name only,
// never through imports, types or dynamic dispatch.
package callgraph

import (
	"fmt"
	"sort"
	"strings"

	"repoctx/internal/engine/record"

	"github.com/dominikbraun/graph"
)

type Mode string

const (
	// ModeBidirectional records called_by with line and call type, and
	// calls_functions on the caller.
	ModeBidirectional Mode = "bidirectional"
	// ModeLegacy is simple name-list linking: called_by carries only the
	// caller name and file, deduplicated.
	ModeLegacy Mode = "legacy"
)

func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeBidirectional:
		return ModeBidirectional, nil
	case ModeLegacy:
		return ModeLegacy, nil
	}
	return "", fmt.Errorf("unknown call graph mode %q (expected bidirectional or legacy)", value)
}

type Options struct {
	Mode Mode
	// Separators split a callee into receiver and member. Defaults to ".".
	Separators []string
	// SelfReceivers always count as the current object, in addition to calls
	// already classified as method calls (e.g. Rust "Self").
	SelfReceivers []string
}

type Edge struct {
	From string
	To   string
}

// Index answers caller and callee lookups in both directions. Vertex ids are
// record.Function.QualifiedName values.
type Index struct {
	g graph.Graph[string, string]
}

// Build resets and recomputes called_by and calls_functions on every function
// in rec, and returns the resulting graph. It never fails.
func Build(rec *record.FileRecord, opts Options) *Index {
	if opts.Mode == "" {
		opts.Mode = ModeBidirectional
	}
	if len(opts.Separators) == 0 {
		opts.Separators = []string{"."}
	}

	idx := &Index{g: graph.New(graph.StringHash, graph.Directed())}
	if rec == nil {
		return idx
	}

	all := rec.AllFunctions()
	r := resolver{
		opts:    opts,
		byName:  make(map[string][]*record.Function),
		methods: make(map[string][]*record.Function),
	}
	for _, fn := range all {
		fn.CalledBy = []record.CallerRef{}
		fn.CallsFunctions = []string{}
		r.byName[fn.Name] = append(r.byName[fn.Name], fn)
		if fn.IsMethod {
			r.methods[fn.Name] = append(r.methods[fn.Name], fn)
		}
		_ = idx.g.AddVertex(fn.QualifiedName())
	}

	for _, caller := range all {
		legacySeen := make(map[*record.Function]bool)
		for _, call := range caller.Calls {
			target := r.resolve(caller, call)
			if target == nil {
				continue
			}

			switch opts.Mode {
			case ModeLegacy:
				if !legacySeen[target] {
					legacySeen[target] = true
					target.CalledBy = append(target.CalledBy, record.CallerRef{
						FunctionName: caller.Name,
						File:         rec.Path,
					})
				}
			default:
				target.CalledBy = append(target.CalledBy, record.CallerRef{
					FunctionName: caller.Name,
					File:         rec.Path,
					Line:         call.Line,
					CallType:     call.Type,
				})
			}
			caller.CallsFunctions = appendUnique(caller.CallsFunctions, target.Name)

			// Repeated calls to the same target collapse into one edge.
			_ = idx.g.AddEdge(caller.QualifiedName(), target.QualifiedName())
		}
	}
	return idx
}

type resolver struct {
	opts    Options
	byName  map[string][]*record.Function
	methods map[string][]*record.Function
}

func (r resolver) resolve(caller *record.Function, call record.Call) *record.Function {
	receiver, member, separators := r.split(call.Name)

	if r.opts.Mode == ModeLegacy {
		switch separators {
		case 0:
			return first(r.byName[call.Name])
		case 1:
			return first(r.byName[member])
		}
		return nil
	}

	switch separators {
	case 0:
		return pickBare(r.byName[call.Name], caller)
	case 1:
		if call.Type == record.CallMethod || r.isSelfReceiver(receiver) {
			if candidates := r.methods[member]; len(candidates) > 0 {
				return pickMember(candidates, receiver, caller)
			}
			return pickBare(r.byName[member], caller)
		}
		if candidates := r.methods[member]; len(candidates) > 0 {
			return pickMember(candidates, receiver, caller)
		}
	}
	return nil
}

// split returns the receiver and member of a callee name along with the
// number of separators it contains.
func (r resolver) split(name string) (string, string, int) {
	count := 0
	lastSep, lastLen := -1, 0
	for i := 0; i < len(name); {
		matched := false
		for _, sep := range r.opts.Separators {
			if sep != "" && strings.HasPrefix(name[i:], sep) {
				count++
				lastSep, lastLen = i, len(sep)
				i += len(sep)
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}
	if lastSep < 0 {
		return "", name, 0
	}
	return name[:lastSep], name[lastSep+lastLen:], count
}

func (r resolver) isSelfReceiver(receiver string) bool {
	for _, s := range r.opts.SelfReceivers {
		if receiver == s {
			return true
		}
	}
	return false
}

// pickBare prefers a top-level function, then a method of the caller's own
// type, then the first candidate in source order.
func pickBare(candidates []*record.Function, caller *record.Function) *record.Function {
	for _, c := range candidates {
		if !c.IsMethod {
			return c
		}
	}
	if caller.ClassName != "" {
		for _, c := range candidates {
			if c.ClassName == caller.ClassName {
				return c
			}
		}
	}
	return first(candidates)
}

// pickMember prefers a method of the type named by the receiver, then a
// method of the caller's own type, then the first candidate.
func pickMember(candidates []*record.Function, receiver string, caller *record.Function) *record.Function {
	for _, c := range candidates {
		if receiver != "" && c.ClassName == receiver {
			return c
		}
	}
	if caller.ClassName != "" {
		for _, c := range candidates {
			if c.ClassName == caller.ClassName {
				return c
			}
		}
	}
	return first(candidates)
}

func first(candidates []*record.Function) *record.Function {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

func appendUnique(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}

// Callers returns the ids of functions that call id, sorted.
func (x *Index) Callers(id string) []string {
	preds, err := x.g.PredecessorMap()
	if err != nil {
		return nil
	}
	return sortedKeys(preds[id])
}

// Callees returns the ids of functions called by id, sorted.
func (x *Index) Callees(id string) []string {
	adj, err := x.g.AdjacencyMap()
	if err != nil {
		return nil
	}
	return sortedKeys(adj[id])
}

// Edges returns every caller to callee edge sorted by caller then callee.
func (x *Index) Edges() []Edge {
	edges, err := x.g.Edges()
	if err != nil {
		return nil
	}
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, Edge{From: e.Source, To: e.Target})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Reachable returns every id transitively called from id, excluding id
// itself unless it is part of a cycle back to itself.
func (x *Index) Reachable(id string) []string {
	if _, err := x.g.Vertex(id); err != nil {
		return nil
	}
	seen := make(map[string]bool)
	_ = graph.DFS(x.g, id, func(v string) bool {
		if v != id {
			seen[v] = true
		}
		return false
	})
	for _, caller := range x.Callers(id) {
		if caller == id || seen[caller] {
			seen[id] = true
			break
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (x *Index) Size() int {
	n, err := x.g.Size()
	if err != nil {
		return 0
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
