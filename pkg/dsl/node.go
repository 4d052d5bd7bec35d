package dsl

import (
	"context"
	"time"

	"github.com/aretw0/strand/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node and its transitions.
// Transitions declared here may name nodes that are added later.
type NodeBuilder struct {
	id       string
	builder  *Builder
	edges    []domain.Edge
	branches []domain.Branch
	fanouts  []domain.FanOut
	// rejected is set when AddNode failed, so options have no node to apply to.
	rejected bool
}

// Add registers a node and returns a fluent builder for its transitions.
// Registration errors are reported by Compile.
func (b *Builder) Add(id string, h domain.Handler, opts ...NodeOption) *NodeBuilder {
	err := b.AddNode(id, h, opts...)
	nb := &NodeBuilder{id: id, builder: b, rejected: err != nil}
	b.pending = append(b.pending, nb)
	return nb
}

// AddFunc is Add for a plain function.
func (b *Builder) AddFunc(id string, fn func(ctx context.Context, state domain.State) (domain.Update, error), opts ...NodeOption) *NodeBuilder {
	return b.Add(id, domain.HandlerFunc(fn), opts...)
}

// Entry marks the node as a successor of START.
func (n *NodeBuilder) Entry() *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{From: domain.Start, To: n.id})
	return n
}

// Go adds an unconditional transition to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{From: n.id, To: target})
	return n
}

// Branch adds a conditional transition. Labels returned by route are mapped through targets.
func (n *NodeBuilder) Branch(route domain.RouteFunc, targets map[string]string) *NodeBuilder {
	copied := make(map[string]string, len(targets))
	for k, v := range targets {
		copied[k] = v
	}
	n.branches = append(n.branches, domain.Branch{From: n.id, Route: route, Targets: copied})
	return n
}

// FanOut adds a dynamic transition evaluated after the node's superstep.
func (n *NodeBuilder) FanOut(producer domain.FanOutFunc, targets ...string) *NodeBuilder {
	n.fanouts = append(n.fanouts, domain.FanOut{From: n.id, Producer: producer, Targets: targets})
	return n
}

// Terminal marks the node as a predecessor of END.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	return n.Go(domain.End)
}

// Writes restricts the fields the node may update.
func (n *NodeBuilder) Writes(fields ...string) *NodeBuilder {
	n.update(WithWrites(fields...))
	return n
}

// Timeout bounds a single invocation of the node.
func (n *NodeBuilder) Timeout(d time.Duration) *NodeBuilder {
	n.update(WithTimeout(d))
	return n
}

func (n *NodeBuilder) update(opt NodeOption) {
	if n.rejected {
		return
	}
	if i, ok := n.builder.index[n.id]; ok {
		opt(&n.builder.nodes[i])
	}
}
