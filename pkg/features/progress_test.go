package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AXLMRIN/activetigger-go/pkg/queue"
)

func newTestManager(t *testing.T, project string) *Manager {
	t.Helper()
	pool := queue.New(queue.Config{NWorkersCPU: 1, NWorkersGPU: 1, UpdateTimeout: 10 * time.Millisecond}, nil)
	t.Cleanup(pool.Stop)
	return New(project, nil, nil, pool, nil, nil)
}

func TestWatchProgressPicksUpWrittenLine(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, "proj-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.WatchProgress(ctx, dir))

	require.NoError(t, WriteProgress(dir, "proj-1:sbert", "3/10"))

	require.Eventually(t, func() bool {
		line, ok := m.FeatureProgress("sbert")
		return ok && line == "3/10"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeatureProgressUnknownTaskIsAbsent(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, "proj-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.WatchProgress(ctx, dir))

	_, ok := m.FeatureProgress("never-written")
	assert.False(t, ok)
}

func TestWriteProgressNoopOnEmptyDir(t *testing.T) {
	assert.NoError(t, WriteProgress("", "task", "1/1"))
}

func TestWatchProgressUpdatesOnOverwrite(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, "proj-2")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.WatchProgress(ctx, dir))

	require.NoError(t, WriteProgress(dir, "proj-2:fasttext", "1/10"))
	require.Eventually(t, func() bool {
		line, ok := m.FeatureProgress("fasttext")
		return ok && line == "1/10"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, WriteProgress(dir, "proj-2:fasttext", "10/10"))
	require.Eventually(t, func() bool {
		line, ok := m.FeatureProgress("fasttext")
		return ok && line == "10/10"
	}, 2*time.Second, 10*time.Millisecond)
}
