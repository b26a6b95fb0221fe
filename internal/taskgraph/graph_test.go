package taskgraph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func TestNewRejectsUnknownDependency(t *testing.T) {
	_, err := New(Node{Name: "styles", Deps: []string{"clean"}, Run: noop})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGraph)
	assert.Contains(t, err.Error(), `unknown node "clean"`)
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(Node{Name: "a"}, Node{Name: "a"})
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestNewRejectsCycle(t *testing.T) {
	_, err := New(
		Node{Name: "a", Deps: []string{"c"}},
		Node{Name: "b", Deps: []string{"a"}},
		Node{Name: "c", Deps: []string{"b"}},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestOrder(t *testing.T) {
	g, err := New(
		Node{Name: "build", Deps: []string{"copy", "styles"}},
		Node{Name: "copy", Deps: []string{"clean"}},
		Node{Name: "styles", Deps: []string{"clean"}},
		Node{Name: "clean"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"clean", "copy", "styles", "build"}, g.Order())
}

type recorder struct {
	mu       sync.Mutex
	started  []string
	finished []NodeResult
}

func (r *recorder) NodeStarted(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, name)
}

func (r *recorder) NodeFinished(res NodeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, res)
}

func TestRunCleanPrecedesStepsAndStepsRunConcurrently(t *testing.T) {
	var cleaned atomic.Bool
	var inFlight, peak atomic.Int32
	step := func(context.Context) error {
		if !cleaned.Load() {
			return errors.New("ran before clean")
		}
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	g, err := New(
		Node{Name: "clean", Run: func(context.Context) error { cleaned.Store(true); return nil }},
		Node{Name: "copy", Deps: []string{"clean"}, Run: step},
		Node{Name: "styles", Deps: []string{"clean"}, Run: step},
		Node{Name: "scripts", Deps: []string{"clean"}, Run: step},
		Node{Name: "build", Deps: []string{"copy", "styles", "scripts"}, Run: noop},
	)
	require.NoError(t, err)

	rec := &recorder{}
	res, err := g.Run(context.Background(), rec)
	require.NoError(t, err)
	assert.Greater(t, peak.Load(), int32(1), "independent steps overlap")
	for _, name := range g.Names() {
		assert.Equal(t, StatusSucceeded, res.Nodes[name].Status, name)
	}
	assert.Equal(t, "clean", res.Finished[0])
	assert.Equal(t, "build", res.Finished[len(res.Finished)-1])
	assert.Len(t, rec.finished, 5)
}

func TestRunFailureSkipsDependentsButSiblingsFinish(t *testing.T) {
	boom := errors.New("unresolved import")
	var siblingDone atomic.Bool
	g, err := New(
		Node{Name: "clean", Run: noop},
		Node{Name: "styles", Deps: []string{"clean"}, Run: func(context.Context) error { return boom }},
		Node{Name: "copy", Deps: []string{"clean"}, Run: func(context.Context) error {
			time.Sleep(40 * time.Millisecond)
			siblingDone.Store(true)
			return nil
		}},
		Node{Name: "build", Deps: []string{"styles", "copy"}, Run: noop},
	)
	require.NoError(t, err)

	res, err := g.Run(context.Background(), nil)
	require.Error(t, err)
	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "styles", nodeErr.Node)
	assert.ErrorIs(t, err, boom)

	assert.True(t, siblingDone.Load())
	assert.Equal(t, StatusSucceeded, res.Nodes["copy"].Status)
	assert.Equal(t, StatusFailed, res.Nodes["styles"].Status)
	assert.Equal(t, StatusSkipped, res.Nodes["build"].Status)
	assert.Len(t, res.Failed(), 1)
}

func TestRunCleanFailureBuildsNothing(t *testing.T) {
	var ran atomic.Int32
	step := func(context.Context) error { ran.Add(1); return nil }
	g, err := New(
		Node{Name: "clean", Run: func(context.Context) error { return errors.New("permission denied") }},
		Node{Name: "copy", Deps: []string{"clean"}, Run: step},
		Node{Name: "markup", Deps: []string{"clean"}, Run: step},
	)
	require.NoError(t, err)

	res, err := g.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Zero(t, ran.Load())
	assert.Equal(t, StatusSkipped, res.Nodes["copy"].Status)
	assert.Equal(t, StatusSkipped, res.Nodes["markup"].Status)
}

func TestRunRecoversPanics(t *testing.T) {
	g, err := New(Node{Name: "icons", Run: func(context.Context) error { panic("nil symbol") }})
	require.NoError(t, err)

	_, err = g.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: nil symbol")
}

func TestRunStopsStartingAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, err := New(
		Node{Name: "clean", Run: func(context.Context) error { cancel(); return nil }},
		Node{Name: "copy", Deps: []string{"clean"}, Run: noop},
	)
	require.NoError(t, err)

	res, err := g.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusSkipped, res.Nodes["copy"].Status)
}
