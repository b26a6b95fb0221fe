package eventstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndQueryBuilds(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, store.AppendBuild(ctx, BuildRecord{ID: "b1", Mode: site.Development, FinishedAt: base, Duration: 1500 * time.Millisecond}))
	require.NoError(t, store.AppendBuild(ctx, BuildRecord{ID: "b2", Mode: site.Production, Revision: "abc123", FinishedAt: base.Add(time.Minute), Err: "styles failed"}))
	require.NoError(t, store.AppendBuild(ctx, BuildRecord{ID: "b3", Mode: site.Development, FinishedAt: base.Add(2 * time.Minute)}))

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b3", recent[0].ID)
	assert.Equal(t, "b2", recent[1].ID)
	assert.Equal(t, "abc123", recent[1].Revision)
	assert.Equal(t, site.Production, recent[1].Mode)
	assert.Equal(t, "styles failed", recent[1].Err)
	assert.True(t, recent[1].FinishedAt.Equal(base.Add(time.Minute)))
}

func TestAppendAndQuerySteps(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	require.NoError(t, store.AppendStep(ctx, StepRecord{BuildID: "b1", Step: "copy", Report: site.Report{Processed: 4, Written: 4}, Duration: 12 * time.Millisecond}))
	require.NoError(t, store.AppendStep(ctx, StepRecord{BuildID: "b1", Step: "styles", Report: site.Report{Processed: 1, Cached: 2}}))
	require.NoError(t, store.AppendStep(ctx, StepRecord{BuildID: "other", Step: "markup"}))

	steps, err := store.Steps(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "copy", steps[0].Step)
	assert.Equal(t, 4, steps[0].Report.Written)
	assert.Equal(t, 12*time.Millisecond, steps[0].Duration)
	assert.Equal(t, 2, steps[1].Report.Cached)
}

func TestFileStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".sitebuild", "history.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AppendBuild(t.Context(), BuildRecord{ID: "b1", Mode: site.Development, FinishedAt: time.Now()}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	recent, err := reopened.Recent(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestRecordConsumesBus(t *testing.T) {
	store := newStore(t)
	bus := events.NewBus()
	ch, cancel := events.Subscribe[events.Event](bus, 4)

	done := make(chan struct{})
	go func() {
		Record(context.Background(), store, ch, nil)
		close(done)
	}()

	ctx := t.Context()
	require.NoError(t, bus.Publish(ctx, events.StepFinished{BuildID: "b1", Category: site.CategoryStatic, At: time.Now()}))
	require.NoError(t, bus.Publish(ctx, events.BuildFinished{BuildID: "b1", Mode: site.Development, At: time.Now()}))
	cancel()
	<-done

	steps, err := store.Steps(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "copy", steps[0].Step)

	builds, err := store.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, builds, 1)
}
