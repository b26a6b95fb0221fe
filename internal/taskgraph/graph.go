// Package taskgraph runs a small, static DAG of named tasks.
//
// Nodes become ready once all their dependencies succeeded and ready nodes
// run concurrently. The first failure stops new nodes from starting; nodes
// already running are allowed to finish, everything else is skipped.
package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph = errors.New("invalid task graph")
	ErrCycle        = errors.New("cycle detected")
)

// GraphError describes a graph rejected at construction.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

// Func is the work of one node.
type Func func(ctx context.Context) error

// Node is a named task with the names of the nodes it depends on.
type Node struct {
	Name string
	Deps []string
	Run  Func
}

// Graph is an immutable, validated DAG.
type Graph struct {
	nodes    []Node
	index    map[string]int
	outgoing [][]int
	indeg    []int
}

// New validates nodes and builds a graph. Duplicate names, unknown
// dependencies and cycles are rejected.
func New(nodes ...Node) (*Graph, error) {
	g := &Graph{
		nodes:    nodes,
		index:    make(map[string]int, len(nodes)),
		outgoing: make([][]int, len(nodes)),
		indeg:    make([]int, len(nodes)),
	}
	for i, n := range nodes {
		if n.Name == "" {
			return nil, invalidf("node %d has no name", i)
		}
		if _, dup := g.index[n.Name]; dup {
			return nil, invalidf("duplicate node %q", n.Name)
		}
		g.index[n.Name] = i
	}
	for i, n := range nodes {
		seen := make(map[string]bool, len(n.Deps))
		for _, dep := range n.Deps {
			j, ok := g.index[dep]
			if !ok {
				return nil, invalidf("node %q depends on unknown node %q", n.Name, dep)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			g.outgoing[j] = append(g.outgoing[j], i)
			g.indeg[i]++
		}
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, &GraphError{Kind: ErrCycle, Msg: strings.Join(cycle, " -> ")}
	}
	return g, nil
}

// Names returns node names in declaration order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		names[i] = n.Name
	}
	return names
}

// Order returns a topological order; ties keep declaration order.
func (g *Graph) Order() []string {
	indeg := append([]int(nil), g.indeg...)
	var ready, out []int
	for i, d := range indeg {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				ready = insertSorted(ready, m)
			}
		}
	}
	names := make([]string, len(out))
	for i, idx := range out {
		names[i] = g.nodes[idx].Name
	}
	return names
}

func insertSorted(s []int, v int) []int {
	i := 0
	for i < len(s) && s[i] < v {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// findCycle returns one cycle as a closed path of names, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.nodes))
	var stack []int
	var cycle []string

	var visit func(u int) bool
	visit = func(u int) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case white:
				if visit(v) {
					return true
				}
			case gray:
				start := 0
				for stack[start] != v {
					start++
				}
				for _, idx := range stack[start:] {
					cycle = append(cycle, g.nodes[idx].Name)
				}
				cycle = append(cycle, g.nodes[v].Name)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for i := range g.nodes {
		if color[i] == white && visit(i) {
			return cycle
		}
	}
	return nil
}
