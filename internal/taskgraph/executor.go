package taskgraph

import (
	"context"
	"fmt"
	"time"
)

// Status is the outcome of one node.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// NodeResult records how one node ended.
type NodeResult struct {
	Name     string
	Status   Status
	Err      error
	Duration time.Duration
}

// Result reports every node's outcome. Finished lists names in completion order.
type Result struct {
	Nodes    map[string]NodeResult
	Finished []string
}

// Failed returns the failed node results in completion order.
func (r *Result) Failed() []NodeResult {
	var out []NodeResult
	for _, name := range r.Finished {
		if nr := r.Nodes[name]; nr.Status == StatusFailed {
			out = append(out, nr)
		}
	}
	return out
}

// NodeError is returned by Run for the first node that failed.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string { return fmt.Sprintf("task %s failed: %v", e.Node, e.Err) }

func (e *NodeError) Unwrap() error { return e.Err }

// Observer is notified as nodes start and finish. Calls arrive from the
// executor goroutine, never concurrently.
type Observer interface {
	NodeStarted(name string)
	NodeFinished(result NodeResult)
}

type finished struct {
	idx int
	err error
	dur time.Duration
}

// Run executes the graph. It returns the per-node result and, when any node
// failed or ctx was cancelled before the graph completed, a *NodeError for
// the first failure (or ctx.Err()).
func (g *Graph) Run(ctx context.Context, obs Observer) (*Result, error) {
	res := &Result{Nodes: make(map[string]NodeResult, len(g.nodes))}
	for _, n := range g.nodes {
		res.Nodes[n.Name] = NodeResult{Name: n.Name, Status: StatusPending}
	}

	indeg := append([]int(nil), g.indeg...)
	done := make(chan finished)
	running := 0
	var firstErr error

	start := func(i int) {
		n := g.nodes[i]
		if obs != nil {
			obs.NodeStarted(n.Name)
		}
		running++
		go func() {
			began := time.Now()
			var err error
			if n.Run != nil {
				err = runSafely(ctx, n.Run)
			}
			done <- finished{idx: i, err: err, dur: time.Since(began)}
		}()
	}

	for i, d := range indeg {
		if d == 0 {
			start(i)
		}
	}

	for running > 0 {
		f := <-done
		running--
		n := g.nodes[f.idx]
		nr := NodeResult{Name: n.Name, Status: StatusSucceeded, Err: f.err, Duration: f.dur}
		if f.err != nil {
			nr.Status = StatusFailed
			if firstErr == nil {
				firstErr = &NodeError{Node: n.Name, Err: f.err}
			}
		}
		res.Nodes[n.Name] = nr
		res.Finished = append(res.Finished, n.Name)
		if obs != nil {
			obs.NodeFinished(nr)
		}
		if f.err != nil {
			continue
		}
		for _, m := range g.outgoing[f.idx] {
			indeg[m]--
			if indeg[m] == 0 && firstErr == nil && ctx.Err() == nil {
				start(m)
			}
		}
	}

	for _, n := range g.nodes {
		if res.Nodes[n.Name].Status == StatusPending {
			res.Nodes[n.Name] = NodeResult{Name: n.Name, Status: StatusSkipped}
		}
	}
	if firstErr == nil && len(res.Finished) < len(g.nodes) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
	return res, firstErr
}

func runSafely(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
