package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

func TestMessageEncoding(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := NewMessage(events.BuildFinished{
		BuildID:  "b1",
		Mode:     site.Production,
		Revision: "deadbeef",
		Duration: 1200 * time.Millisecond,
		At:       at,
		Steps: []events.StepFinished{
			{Category: site.CategoryStatic, Report: site.Report{Written: 2}},
			{Category: site.CategoryStyles, Err: "import cycle"},
		},
		Err: "styles failed",
	})

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"build_id": "b1",
		"mode": "production",
		"revision": "deadbeef",
		"success": false,
		"error": "styles failed",
		"duration_ms": 1200,
		"steps": [
			{"name": "copy", "written": 2, "removed": 0},
			{"name": "styles", "written": 0, "removed": 0, "error": "import cycle"}
		],
		"finished_at": "2026-03-01T12:00:00Z"
	}`, string(data))
}

type fakeNotifier struct {
	mu   sync.Mutex
	seen []string
	fail bool
}

func (f *fakeNotifier) NotifyBuild(_ context.Context, evt events.BuildFinished) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, evt.BuildID)
	if f.fail {
		return errors.New("unreachable")
	}
	return nil
}

func (f *fakeNotifier) Close() {}

func TestForwardDrainsChannel(t *testing.T) {
	ch := make(chan events.BuildFinished, 2)
	ch <- events.BuildFinished{BuildID: "a"}
	ch <- events.BuildFinished{BuildID: "b"}
	close(ch)

	n := &fakeNotifier{fail: true}
	Forward(context.Background(), n, ch, nil)
	assert.Equal(t, []string{"a", "b"}, n.seen)
}

func TestConnectFailure(t *testing.T) {
	_, err := NewNATSNotifier("nats://127.0.0.1:1", "sitebuild.builds")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to NATS")
}

func TestNoop(t *testing.T) {
	var n Notifier = Noop{}
	require.NoError(t, n.NotifyBuild(context.Background(), events.BuildFinished{}))
	n.Close()
}
