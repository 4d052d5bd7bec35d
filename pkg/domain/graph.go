package domain

import (
	"context"
	"sort"
	"time"

	"github.com/aretw0/strand/pkg/schema"
)

// Pseudo-node identifiers. They are always registered and cannot be redefined.
const (
	Start = "__start__"
	End   = "__end__"
)

// Handler is the body of a node. It reads a private view of the pre-superstep
// state and returns the fields it wants to update.
type Handler interface {
	Run(ctx context.Context, state State) (Update, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, state State) (Update, error)

// Run calls f(ctx, state).
func (f HandlerFunc) Run(ctx context.Context, state State) (Update, error) {
	return f(ctx, state)
}

// RouteFunc selects the labels of a conditional edge from the post-merge state.
type RouteFunc func(ctx context.Context, state State) ([]string, error)

// FanOutFunc produces one Send per task to schedule in the next superstep.
type FanOutFunc func(ctx context.Context, state State) ([]Send, error)

// Send asks the engine to run Node once with Arg layered over the shared state.
type Send struct {
	Node string `json:"node"`
	Arg  Update `json:"arg,omitempty"`
}

// Node represents a named unit of computation in the graph.
type Node struct {
	ID      string
	Handler Handler

	// Writes optionally restricts the fields the node may update.
	// An empty list allows any declared field.
	Writes []string

	// Timeout bounds a single invocation. Zero uses the engine default.
	Timeout time.Duration

	// Metadata allows for extensible key-value pairs (used by visualization).
	Metadata map[string]string
}

// Edge is an unconditional transition.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Branch is a conditional transition. Route returns labels that are mapped to
// destinations through Targets.
type Branch struct {
	From    string
	Route   RouteFunc
	Targets map[string]string
}

// Destinations returns the distinct destination nodes of the branch, sorted.
func (b Branch) Destinations() []string {
	seen := make(map[string]bool, len(b.Targets))
	out := make([]string, 0, len(b.Targets))
	for _, to := range b.Targets {
		if !seen[to] {
			seen[to] = true
			out = append(out, to)
		}
	}
	sort.Strings(out)
	return out
}

// FanOut is a dynamic transition evaluated at run time. Targets lists the nodes
// the producer may address; it is used for reachability and validation.
type FanOut struct {
	From     string
	Producer FanOutFunc
	Targets  []string
}

// Outgoing groups every transition leaving one node.
type Outgoing struct {
	Edges    []string
	Branches []Branch
	FanOuts  []FanOut
}

// Successors returns every node that may follow, in declaration order.
func (o *Outgoing) Successors() []string {
	if o == nil {
		return nil
	}
	var out []string
	out = append(out, o.Edges...)
	for _, b := range o.Branches {
		out = append(out, b.Destinations()...)
	}
	for _, f := range o.FanOuts {
		out = append(out, f.Targets...)
	}
	return out
}

// Graph is a compiled, immutable graph definition.
// It is safe for concurrent read-only use by many runs.
type Graph struct {
	schema   *schema.StateSchema
	nodes    map[string]*Node
	order    []string
	rank     map[string]int
	edges    []Edge
	branches []Branch
	fanouts  []FanOut
	outgoing map[string]*Outgoing
}

// NewGraph freezes a graph definition. Validation is the caller's job
// (see pkg/dsl); NewGraph only indexes the parts.
func NewGraph(s *schema.StateSchema, nodes []Node, edges []Edge, branches []Branch, fanouts []FanOut) *Graph {
	g := &Graph{
		schema:   s,
		nodes:    make(map[string]*Node, len(nodes)),
		order:    make([]string, 0, len(nodes)),
		rank:     make(map[string]int, len(nodes)),
		edges:    append([]Edge(nil), edges...),
		branches: append([]Branch(nil), branches...),
		fanouts:  append([]FanOut(nil), fanouts...),
		outgoing: make(map[string]*Outgoing),
	}

	for i := range nodes {
		n := nodes[i]
		g.nodes[n.ID] = &n
		g.rank[n.ID] = len(g.order)
		g.order = append(g.order, n.ID)
	}

	out := func(id string) *Outgoing {
		o, ok := g.outgoing[id]
		if !ok {
			o = &Outgoing{}
			g.outgoing[id] = o
		}
		return o
	}
	for _, e := range g.edges {
		o := out(e.From)
		o.Edges = append(o.Edges, e.To)
	}
	for _, b := range g.branches {
		o := out(b.From)
		o.Branches = append(o.Branches, b)
	}
	for _, f := range g.fanouts {
		o := out(f.From)
		o.FanOuts = append(o.FanOuts, f)
	}

	return g
}

// Schema returns the state schema the graph was compiled against.
func (g *Graph) Schema() *schema.StateSchema { return g.schema }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether id is a registered node or pseudo-node.
func (g *Graph) HasNode(id string) bool {
	if id == Start || id == End {
		return true
	}
	_, ok := g.nodes[id]
	return ok
}

// NodeIDs returns node ids in registration order.
func (g *Graph) NodeIDs() []string {
	return append([]string(nil), g.order...)
}

// Rank returns the registration index of a node; used as the stable scheduling order.
func (g *Graph) Rank(id string) int {
	if r, ok := g.rank[id]; ok {
		return r
	}
	return len(g.order)
}

// Outgoing returns the transitions leaving a node (nil when it has none).
func (g *Graph) Outgoing(id string) *Outgoing {
	return g.outgoing[id]
}

// Edges returns the static edges.
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// Branches returns the conditional edges.
func (g *Graph) Branches() []Branch { return append([]Branch(nil), g.branches...) }

// FanOuts returns the dynamic fan-out edges.
func (g *Graph) FanOuts() []FanOut { return append([]FanOut(nil), g.fanouts...) }
