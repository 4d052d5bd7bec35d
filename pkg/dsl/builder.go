package dsl

import (
	"fmt"
	"time"

	"github.com/aretw0/strand/internal/validator"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/schema"
)

// NodeOption configures a node at registration time.
type NodeOption func(*domain.Node)

// WithWrites restricts the fields a node may update.
func WithWrites(fields ...string) NodeOption {
	return func(n *domain.Node) {
		n.Writes = append(n.Writes, fields...)
	}
}

// WithTimeout bounds a single invocation of the node.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *domain.Node) {
		n.Timeout = d
	}
}

// WithMetadata attaches a key-value pair used by visualization.
func WithMetadata(key, value string) NodeOption {
	return func(n *domain.Node) {
		if n.Metadata == nil {
			n.Metadata = make(map[string]string)
		}
		n.Metadata[key] = value
	}
}

// Builder manages the graph construction.
// It is not safe for concurrent use; the compiled graph is.
type Builder struct {
	schema   *schema.StateSchema
	nodes    []domain.Node
	index    map[string]int
	edges    []domain.Edge
	branches []domain.Branch
	fanouts  []domain.FanOut

	// pending holds transitions declared through NodeBuilder. They may reference
	// nodes added later and are resolved by Compile.
	pending []*NodeBuilder

	errs []*domain.ConfigurationError
}

// New creates a new graph builder for the given state schema.
func New(s *schema.StateSchema) *Builder {
	return &Builder{
		schema: s,
		index:  make(map[string]int),
	}
}

// Schema returns the schema the builder compiles against.
func (b *Builder) Schema() *schema.StateSchema { return b.schema }

func (b *Builder) fail(node, field, format string, args ...any) error {
	err := &domain.ConfigurationError{Node: node, Field: field, Reason: fmt.Sprintf(format, args...)}
	b.errs = append(b.errs, err)
	return err
}

func (b *Builder) registered(id string) bool {
	if id == domain.Start || id == domain.End {
		return true
	}
	_, ok := b.index[id]
	return ok
}

// AddNode registers a node. It fails if the name is empty, reserved or already taken.
// Errors are also recorded and reported again by Compile.
func (b *Builder) AddNode(id string, h domain.Handler, opts ...NodeOption) error {
	switch {
	case id == "":
		return b.fail("", "", "node name cannot be empty")
	case id == domain.Start || id == domain.End:
		return b.fail(id, "", "node name is reserved")
	case b.registered(id):
		return b.fail(id, "", "node already registered")
	case h == nil:
		return b.fail(id, "", "node has no handler")
	}

	n := domain.Node{ID: id, Handler: h}
	for _, opt := range opts {
		opt(&n)
	}
	b.index[id] = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return nil
}

// AddEdge registers an unconditional transition between two registered nodes.
func (b *Builder) AddEdge(from, to string) error {
	if err := b.checkEndpoints(from, to); err != nil {
		return err
	}
	b.edges = append(b.edges, domain.Edge{From: from, To: to})
	return nil
}

// AddConditionalEdges registers a branch whose route labels are mapped to destinations
// through targets. Every destination must already be registered.
func (b *Builder) AddConditionalEdges(from string, route domain.RouteFunc, targets map[string]string) error {
	if route == nil {
		return b.fail(from, "", "conditional edge has no route function")
	}
	if len(targets) == 0 {
		return b.fail(from, "", "conditional edge has an empty label map")
	}
	if err := b.checkEndpoints(from); err != nil {
		return err
	}
	copied := make(map[string]string, len(targets))
	for label, to := range targets {
		if err := b.checkEndpoints("", to); err != nil {
			return err
		}
		copied[label] = to
	}
	b.branches = append(b.branches, domain.Branch{From: from, Route: route, Targets: copied})
	return nil
}

// AddFanOut registers a dynamic transition. The producer may only address the listed targets.
func (b *Builder) AddFanOut(from string, producer domain.FanOutFunc, targets ...string) error {
	if producer == nil {
		return b.fail(from, "", "fan-out has no producer")
	}
	if len(targets) == 0 {
		return b.fail(from, "", "fan-out declares no targets")
	}
	if err := b.checkEndpoints(from, targets...); err != nil {
		return err
	}
	b.fanouts = append(b.fanouts, domain.FanOut{From: from, Producer: producer, Targets: append([]string(nil), targets...)})
	return nil
}

func (b *Builder) checkEndpoints(from string, to ...string) error {
	if from != "" {
		if from == domain.End {
			return b.fail(from, "", "END cannot have outgoing transitions")
		}
		if !b.registered(from) {
			return b.fail(from, "", "source node is not registered")
		}
	}
	for _, t := range to {
		if t == domain.Start {
			return b.fail(t, "", "START cannot be a destination")
		}
		if !b.registered(t) {
			return b.fail(t, "", "destination node is not registered")
		}
	}
	return nil
}

// Compile validates the definition and freezes it into a Graph.
// It does not modify the builder, so calling it twice yields equivalent graphs.
func (b *Builder) Compile() (*domain.Graph, error) {
	errs := append([]*domain.ConfigurationError(nil), b.errs...)
	if b.schema == nil {
		errs = append(errs, &domain.ConfigurationError{Reason: "graph has no state schema"})
		return nil, &domain.CompileError{Errors: errs}
	}

	edges := append([]domain.Edge(nil), b.edges...)
	branches := append([]domain.Branch(nil), b.branches...)
	fanouts := append([]domain.FanOut(nil), b.fanouts...)
	for _, nb := range b.pending {
		edges = append(edges, nb.edges...)
		branches = append(branches, nb.branches...)
		fanouts = append(fanouts, nb.fanouts...)
	}

	g := domain.NewGraph(b.schema, b.nodes, edges, branches, fanouts)
	errs = append(errs, validator.Validate(g)...)
	if len(errs) > 0 {
		return nil, &domain.CompileError{Errors: errs}
	}
	return g, nil
}
